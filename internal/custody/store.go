package custody

import "context"

// Store is the append-only evidence version store.
type Store interface {
	// Append adds the next version of s.EvidenceID, creating the identifier
	// when it has none. Concurrent appends to one identifier are serialised.
	Append(ctx context.Context, s Submission) (*Entry, error)

	// Latest returns the highest version of evidenceID or ErrNotFound.
	Latest(ctx context.Context, evidenceID string) (*Entry, error)

	// History returns every version of evidenceID, ascending, or ErrNotFound.
	History(ctx context.Context, evidenceID string) ([]*Entry, error)

	// All returns the latest version of every identifier ordered by identifier.
	All(ctx context.Context) ([]*Entry, error)

	// Verify walks every chain and checks hash consistency.
	Verify(ctx context.Context) error

	// Stats counts identifiers and stored versions.
	Stats(ctx context.Context) (Stats, error)
}

// Stats summarises a store.
type Stats struct {
	Identifiers int `json:"identifiers"`
	Versions    int `json:"versions"`
}
