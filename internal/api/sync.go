package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/dispatcher"
)

const defaultRunsLimit = 20

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if s.syncs == nil {
		s.writeError(w, http.StatusNotImplemented, "sync_disabled", "sync is not configured")
		return
	}
	if err := s.syncs.TriggerSync(r.Context()); err != nil {
		if errors.Is(err, dispatcher.ErrAlreadyRunning) {
			s.writeError(w, http.StatusConflict, "sync_running", err.Error())
			return
		}
		s.logger.Error("trigger sync failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) syncStatus(w http.ResponseWriter, _ *http.Request) {
	if s.syncs == nil {
		s.writeError(w, http.StatusNotImplemented, "sync_disabled", "sync is not configured")
		return
	}
	st := s.syncs.Status()
	body := map[string]any{"running": st.Running}
	if st.Last != nil {
		body["last_run_at"] = st.LastRunAt
		body["last"] = st.Last
	}
	if st.LastError != "" {
		body["last_error"] = st.LastError
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) listSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil || limit < 0 {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "limit must be a positive integer", Field: "limit"})
		return
	}
	if limit == 0 {
		limit = defaultRunsLimit
	}
	runs, err := s.runs.ListSyncRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list sync runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	if runs == nil {
		runs = []animal.SyncRun{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
