// Package store persists contact checkpoints and solve traces on disk.
package store

// Store defines checkpoint persistence. Implementations must be safe for
// concurrent use.
//
// Error handling conventions:
//   - Return a *NotFoundError if a checkpoint doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveCheckpoint atomically replaces the checkpoint of a contact.
	SaveCheckpoint(contactID string, checkpoint *Checkpoint) error

	// LoadCheckpoint returns the latest checkpoint of a contact.
	LoadCheckpoint(contactID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for every readable checkpoint.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes a contact's checkpoint and its trace.
	DeleteCheckpoint(contactID string) error
}

// ErrNotFound matches every *NotFoundError with errors.Is.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint.
type NotFoundError struct {
	ContactID string
}

func (e *NotFoundError) Error() string {
	if e.ContactID != "" {
		return "checkpoint not found: " + e.ContactID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
