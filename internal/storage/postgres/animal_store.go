package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

var animalColumns = []string{
	"provider",
	"native_id",
	"name",
	"breed_primary",
	"breed_secondary",
	"breed_mixed",
	"age",
	"size",
	"gender",
	"photos",
	"description",
	"city",
	"state",
	"postcode",
	"latitude",
	"longitude",
	"organization_id",
	"house_trained",
	"special_needs",
	"spayed_neutered",
	"shots_current",
	"good_with_children",
	"good_with_dogs",
	"good_with_cats",
	"energy_level",
	"coat_color",
	"external_url",
	"visibility_score",
	"published_at",
	"last_updated",
	"status",
}

var (
	selectAnimalColumns = strings.Join(animalColumns, ", ")
	upsertAnimalSQL     = buildUpsertSQL()
)

func buildUpsertSQL() string {
	placeholders := make([]string, len(animalColumns))
	updates := make([]string, 0, len(animalColumns)-2)
	for i, col := range animalColumns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		if col == "provider" || col == "native_id" {
			continue
		}
		updates = append(updates, col+" = EXCLUDED."+col)
	}
	return fmt.Sprintf(`
INSERT INTO animals (%s)
VALUES (%s)
ON CONFLICT (provider, native_id) DO UPDATE SET
	%s
RETURNING (xmax = 0) AS inserted`,
		selectAnimalColumns,
		strings.Join(placeholders, ", "),
		strings.Join(updates, ",\n\t"))
}

// AnimalStore implements store.AnimalRepository on Postgres.
type AnimalStore struct {
	pool Pool
}

// NewAnimalStore constructs a store from an existing pool.
func NewAnimalStore(pool Pool) (*AnimalStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AnimalStore{pool: pool}, nil
}

// Upsert implements store.AnimalRepository.
func (s *AnimalStore) Upsert(ctx context.Context, rec formatter.StoreRaw) (store.UpsertResult, error) {
	if rec.Provider == "" || rec.ID == "" {
		return 0, fmt.Errorf("provider and native id are required")
	}
	args, err := animalArgs(rec)
	if err != nil {
		return 0, err
	}
	var inserted bool
	if err := s.pool.QueryRow(ctx, upsertAnimalSQL, args...).Scan(&inserted); err != nil {
		return 0, fmt.Errorf("upsert animal: %w", err)
	}
	if inserted {
		return store.Inserted, nil
	}
	return store.Updated, nil
}

// Query implements store.AnimalRepository.
func (s *AnimalStore) Query(ctx context.Context, filter animal.Filter, page animal.Page) (store.QueryResult, error) {
	where, args := whereClause(filter)

	var total int
	countSQL := "SELECT count(*) FROM animals WHERE " + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return store.QueryResult{}, fmt.Errorf("count animals: %w", err)
	}

	listSQL := "SELECT " + selectAnimalColumns + " FROM animals WHERE " + where +
		" ORDER BY visibility_score DESC NULLS LAST, provider, native_id"
	if page.Limit > 0 {
		args = append(args, page.Limit)
		listSQL += " LIMIT $" + strconv.Itoa(len(args))
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		listSQL += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return store.QueryResult{}, fmt.Errorf("query animals: %w", err)
	}
	defer rows.Close()

	var out []formatter.StoreRaw
	for rows.Next() {
		rec, err := scanAnimal(rows)
		if err != nil {
			return store.QueryResult{}, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return store.QueryResult{}, fmt.Errorf("iterate animals: %w", err)
	}
	return store.QueryResult{Records: out, Total: total}, nil
}

// GetByNaturalKey implements store.AnimalRepository.
func (s *AnimalStore) GetByNaturalKey(ctx context.Context, id animal.ID) (formatter.StoreRaw, error) {
	query := "SELECT " + selectAnimalColumns + " FROM animals WHERE provider = $1 AND native_id = $2"
	rec, err := scanAnimal(s.pool.QueryRow(ctx, query, id.Provider, id.NativeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return formatter.StoreRaw{}, store.ErrNotFound
		}
		return formatter.StoreRaw{}, err
	}
	return rec, nil
}

// MarkStaleAsRemoved implements store.AnimalRepository.
func (s *AnimalStore) MarkStaleAsRemoved(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
		UPDATE animals
		SET status = $1
		WHERE status = $2 AND last_updated < $3;
	`
	tag, err := s.pool.Exec(ctx, query, string(animal.StatusRemoved), string(animal.StatusAdoptable), olderThan)
	if err != nil {
		return 0, fmt.Errorf("mark stale animals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func animalArgs(r formatter.StoreRaw) ([]any, error) {
	photos := r.Photos
	if photos == nil {
		photos = []string{}
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return nil, fmt.Errorf("marshal photos: %w", err)
	}
	status := r.Status
	if status == "" {
		status = string(animal.StatusAdoptable)
	}
	return []any{
		r.Provider,
		r.ID,
		r.Name,
		r.BreedPrimary,
		r.BreedSecondary,
		r.BreedMixed,
		r.Age,
		r.Size,
		r.Gender,
		photosJSON,
		r.Description,
		r.City,
		r.State,
		r.Postcode,
		r.Latitude,
		r.Longitude,
		r.OrganizationID,
		r.HouseTrained,
		r.SpecialNeeds,
		r.SpayedNeutered,
		r.ShotsCurrent,
		r.GoodWithChildren,
		r.GoodWithDogs,
		r.GoodWithCats,
		r.EnergyLevel,
		r.CoatColor,
		r.ExternalURL,
		r.VisibilityScore,
		r.PublishedAt,
		r.LastUpdated,
		status,
	}, nil
}

func scanAnimal(row pgx.Row) (formatter.StoreRaw, error) {
	var (
		r      formatter.StoreRaw
		photos []byte
	)
	err := row.Scan(
		&r.Provider,
		&r.ID,
		&r.Name,
		&r.BreedPrimary,
		&r.BreedSecondary,
		&r.BreedMixed,
		&r.Age,
		&r.Size,
		&r.Gender,
		&photos,
		&r.Description,
		&r.City,
		&r.State,
		&r.Postcode,
		&r.Latitude,
		&r.Longitude,
		&r.OrganizationID,
		&r.HouseTrained,
		&r.SpecialNeeds,
		&r.SpayedNeutered,
		&r.ShotsCurrent,
		&r.GoodWithChildren,
		&r.GoodWithDogs,
		&r.GoodWithCats,
		&r.EnergyLevel,
		&r.CoatColor,
		&r.ExternalURL,
		&r.VisibilityScore,
		&r.PublishedAt,
		&r.LastUpdated,
		&r.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan animal: %w", err)
	}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &r.Photos); err != nil {
			return r, fmt.Errorf("decode photos: %w", err)
		}
	}
	if r.Photos == nil {
		r.Photos = []string{}
	}
	return r, nil
}

// whereClause renders filter as SQL. Every predicate is parameterized.
func whereClause(f animal.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	add("status = ?", string(f.EffectiveStatus()))
	if f.Location.Postcode != "" {
		add("postcode = ?", f.Location.Postcode)
	} else {
		if f.Location.State != "" {
			add("lower(state) = lower(?)", f.Location.State)
		}
		if f.Location.City != "" {
			add("lower(city) = lower(?)", f.Location.City)
		}
	}
	if f.Breed != "" {
		add("(lower(breed_primary) = lower(?) OR lower(breed_secondary) = lower(?))", f.Breed)
	}
	if f.Age != "" {
		add("age = ?", string(f.Age))
	}
	if f.Size != "" {
		add("size = ?", string(f.Size))
	}
	if f.Gender != "" {
		add("gender = ?", string(f.Gender))
	}
	if f.GoodWithChildren {
		conds = append(conds, "good_with_children IS TRUE")
	}
	if f.GoodWithDogs {
		conds = append(conds, "good_with_dogs IS TRUE")
	}
	if f.GoodWithCats {
		conds = append(conds, "good_with_cats IS TRUE")
	}
	if f.SpecialNeeds {
		conds = append(conds, "special_needs IS TRUE")
	}
	if !f.PublishedSince.IsZero() {
		add("published_at >= ?", f.PublishedSince)
	}
	return strings.Join(conds, " AND "), args
}
