package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/registry"
)

// ErrPublicationNotFound is returned when no publication has the given key.
var ErrPublicationNotFound = errors.New("publication not found")

// publicationModel is a row of the publications table. Interfaces and
// attributes are stored as JSON.
type publicationModel struct {
	ID         int64
	Key        string
	Interfaces string
	Attributes string
	CreatedAt  int64 // Unix timestamp
}

// StoredPublication is a publication together with its row metadata.
type StoredPublication struct {
	registry.Publication
	CreatedAt time.Time
}

func toPublicationModel(p registry.Publication, createdAt time.Time) (*publicationModel, error) {
	ifaces, err := json.Marshal(p.Interfaces)
	if err != nil {
		return nil, fmt.Errorf("encoding interfaces: %w", err)
	}
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encoding attributes: %w", err)
	}
	return &publicationModel{
		Key:        p.Key,
		Interfaces: string(ifaces),
		Attributes: string(attrJSON),
		CreatedAt:  createdAt.Unix(),
	}, nil
}

func (m *publicationModel) toDomain() (StoredPublication, error) {
	var ifaces []string
	if err := json.Unmarshal([]byte(m.Interfaces), &ifaces); err != nil {
		return StoredPublication{}, fmt.Errorf("decoding interfaces of %s: %w", m.Key, err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(m.Attributes)))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return StoredPublication{}, fmt.Errorf("decoding attributes of %s: %w", m.Key, err)
	}
	for k, v := range attrs {
		attrs[k] = normalizeJSON(v)
	}

	return StoredPublication{
		Publication: registry.Publication{Key: m.Key, Interfaces: ifaces, Attributes: attrs},
		CreatedAt:   time.Unix(m.CreatedAt, 0),
	}, nil
}

// normalizeJSON turns json.Number into int64 when integral and float64
// otherwise, so numeric filters compare numerically.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil && !math.IsInf(f, 0) {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalizeJSON(x[i])
		}
		return x
	default:
		return v
	}
}

// PublicationRepository stores publications.
type PublicationRepository struct {
	db  *sql.DB
	now func() time.Time
}

func newPublicationRepository(db *sql.DB) *PublicationRepository {
	return &PublicationRepository{db: db, now: time.Now}
}

func scanPublication(scanner interface{ Scan(...any) error }) (*publicationModel, error) {
	var model publicationModel
	err := scanner.Scan(&model.ID, &model.Key, &model.Interfaces, &model.Attributes, &model.CreatedAt)
	return &model, err
}

// Insert stores a new publication under a fresh key and returns it.
func (r *PublicationRepository) Insert(ctx context.Context, interfaces []string, attrs map[string]any) (StoredPublication, error) {
	if len(interfaces) == 0 {
		return StoredPublication{}, fmt.Errorf("%w: no interfaces", registry.ErrInvalidDescriptor)
	}

	now := r.now()
	p := registry.Publication{Key: uuid.NewString(), Interfaces: interfaces, Attributes: attrs}
	model, err := toPublicationModel(p, now)
	if err != nil {
		return StoredPublication{}, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO publications (key, interfaces, attributes, created_at) VALUES (?, ?, ?, ?)`,
		model.Key, model.Interfaces, model.Attributes, model.CreatedAt,
	)
	if err != nil {
		return StoredPublication{}, fmt.Errorf("failed to insert publication: %w", err)
	}

	log.Debug(log.CatDB, "publication stored", "key", p.Key, "interfaces", interfaces)
	return model.toDomain()
}

// Get returns the publication stored under key.
func (r *PublicationRepository) Get(ctx context.Context, key string) (StoredPublication, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, key, interfaces, attributes, created_at FROM publications WHERE key = ?`, key)
	model, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredPublication{}, fmt.Errorf("%s: %w", key, ErrPublicationNotFound)
	}
	if err != nil {
		return StoredPublication{}, fmt.Errorf("failed to get publication: %w", err)
	}
	return model.toDomain()
}

// Delete removes the publication stored under key.
func (r *PublicationRepository) Delete(ctx context.Context, key string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM publications WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete publication: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", key, ErrPublicationNotFound)
	}

	log.Debug(log.CatDB, "publication deleted", "key", key)
	return nil
}

// List returns every publication, oldest first.
func (r *PublicationRepository) List(ctx context.Context) ([]StoredPublication, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, key, interfaces, attributes, created_at FROM publications ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list publications: %w", err)
	}
	defer rows.Close()

	var out []StoredPublication
	for rows.Next() {
		model, err := scanPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		p, err := model.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate publications: %w", err)
	}
	return out, nil
}

// Publications is List without row metadata, ready for registry.Sync.
func (r *PublicationRepository) Publications(ctx context.Context) ([]registry.Publication, error) {
	stored, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Publication, len(stored))
	for i, s := range stored {
		out[i] = s.Publication
	}
	return out, nil
}
