package presentation

import (
	"time"

	"github.com/szhem/osgi-utils/internal/infrastructure/sqlite"
	"github.com/szhem/osgi-utils/internal/registry"
)

// ReferenceDTO represents a published service for presentation.
type ReferenceDTO struct {
	ID         uint64         `json:"id" yaml:"id"`
	Interfaces []string       `json:"interfaces" yaml:"interfaces"`
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
}

// PublicationDTO represents a persisted publication.
type PublicationDTO struct {
	Key        string         `json:"key" yaml:"key"`
	Interfaces []string       `json:"interfaces" yaml:"interfaces"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// FromReference converts a registry reference. Reserved attributes are kept.
func FromReference(ref registry.Reference) ReferenceDTO {
	return ReferenceDTO{
		ID:         uint64(ref.ID()),
		Interfaces: ref.Interfaces(),
		Attributes: ref.Attributes(),
	}
}

// FromReferences converts refs, keeping their order.
func FromReferences(refs []registry.Reference) []ReferenceDTO {
	out := make([]ReferenceDTO, len(refs))
	for i, ref := range refs {
		out[i] = FromReference(ref)
	}
	return out
}

// FromStored converts a stored publication.
func FromStored(p sqlite.StoredPublication) PublicationDTO {
	return PublicationDTO{
		Key:        p.Key,
		Interfaces: p.Interfaces,
		Attributes: p.Attributes,
		CreatedAt:  p.CreatedAt,
	}
}
