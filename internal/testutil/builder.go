package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/szhem/osgi-utils/internal/infrastructure/sqlite"
)

// Builder accumulates publications and stores them in order.
type Builder struct {
	t    *testing.T
	repo *sqlite.PublicationRepository
	pubs []publicationData
}

// NewBuilder creates a builder for the given test database.
func NewBuilder(t *testing.T, db *sqlite.DB) *Builder {
	t.Helper()
	return &Builder{t: t, repo: db.Publications()}
}

// WithPublication adds a publication under iface with optional configuration.
func (b *Builder) WithPublication(iface string, opts ...PublicationOption) *Builder {
	p := publicationData{interfaces: []string{iface}, attrs: map[string]any{}}
	for _, opt := range opts {
		opt(&p)
	}
	b.pubs = append(b.pubs, p)
	return b
}

// Build inserts all accumulated publications and returns them as stored,
// keys included.
func (b *Builder) Build() []sqlite.StoredPublication {
	b.t.Helper()
	stored := make([]sqlite.StoredPublication, 0, len(b.pubs))
	for _, p := range b.pubs {
		s, err := b.repo.Insert(context.Background(), p.interfaces, p.attrs)
		require.NoError(b.t, err)
		stored = append(stored, s)
	}
	b.pubs = nil
	return stored
}
