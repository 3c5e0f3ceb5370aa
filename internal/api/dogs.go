package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/resolver"
)

type searchResponse struct {
	resolver.Result
	Page     int `json:"page"`
	PageSize int `json:"page_size,omitempty"`
}

func (s *Server) searchDogs(w http.ResponseWriter, r *http.Request) {
	criteria, page, err := parseSearch(r.URL.Query())
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	res, err := s.searcher.Search(r.Context(), criteria, page)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	if res.Animals == nil {
		res.Animals = []animal.Animal{}
	}
	s.writeJSON(w, http.StatusOK, searchResponse{Result: res, Page: max(page.Page, 1), PageSize: page.PageSize})
}

func (s *Server) getDog(w http.ResponseWriter, r *http.Request) {
	dog, err := s.searcher.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dog)
}

func parseSearch(q url.Values) (resolver.Criteria, resolver.Pagination, error) {
	c := resolver.Criteria{
		Location: q.Get("location"),
		Breed:    q.Get("breed"),
		Age:      q.Get("age"),
		Size:     q.Get("size"),
		Gender:   q.Get("gender"),
	}
	flags := []struct {
		name string
		dst  *bool
	}{
		{"good_with_children", &c.GoodWithChildren},
		{"good_with_dogs", &c.GoodWithDogs},
		{"good_with_cats", &c.GoodWithCats},
		{"special_needs", &c.SpecialNeeds},
		{"explain", &c.Explain},
	}
	for _, f := range flags {
		v, err := boolParam(q, f.name)
		if err != nil {
			return c, resolver.Pagination{}, err
		}
		*f.dst = v
	}
	page, err := intParam(q, "page")
	if err != nil {
		return c, resolver.Pagination{}, err
	}
	size, err := intParam(q, "page_size")
	if err != nil {
		return c, resolver.Pagination{}, err
	}
	return c, resolver.Pagination{Page: page, PageSize: size}, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &resolver.InvalidInputError{Field: name, Value: raw, Reason: "expected true or false"}
	}
	return v, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &resolver.InvalidInputError{Field: name, Value: raw, Reason: "expected an integer"}
	}
	return v, nil
}

// writeSearchError maps resolver errors to HTTP responses.
func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid   *resolver.InvalidInputError
		exhausted *resolver.ExhaustedError
	)
	switch {
	case errors.As(err, &invalid):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: invalid.Reason, Field: invalid.Field})
	case errors.Is(err, resolver.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &exhausted):
		if exhausted.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(exhausted.RetryAfter.Seconds()))))
		}
		status := http.StatusServiceUnavailable
		if exhausted.AllRateLimited {
			status = http.StatusTooManyRequests
		}
		s.writeError(w, status, "sources_exhausted", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request canceled", zap.String("path", r.URL.Path))
		s.writeError(w, http.StatusServiceUnavailable, "canceled", err.Error())
	default:
		s.logger.Error("search failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
