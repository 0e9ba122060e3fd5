// Package storage persists agent configuration and concluded debates.
package storage

import (
	"github.com/thiagofdso/adapta-chat/internal/core"
)

// Storage defines the interface for adapta-chat persistence.
type Storage interface {
	// Initialize sets up the storage (creates tables, etc.)
	Initialize() error

	// Close closes the storage connection.
	Close() error

	// Agent configuration. Loads return an empty map when nothing is stored;
	// saves replace the whole mapping.
	LoadCustomInstructions() (map[string]string, error)
	SaveCustomInstructions(instructions map[string]string) error
	LoadModelBindings() (map[string]string, error)
	SaveModelBindings(bindings map[string]string) error

	// Debate archive
	SaveDebate(session *core.Session) error
	GetDebate(id string) (*core.Session, error)
	ListDebates(limit, offset int) ([]*core.DebateSummary, error)
	DeleteDebate(id string) error
}
