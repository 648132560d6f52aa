package checkpoint

// Store defines the interface for checkpoint persistence. Exactly one
// collector process writes at a time; backends only need to guarantee that
// a reader never observes a partially written record.
type Store interface {
	// Load returns the persisted checkpoint. A missing or unreadable
	// record is not an error: it yields the zero checkpoint so the batch
	// starts from scratch.
	Load() (Checkpoint, error)

	// Save fully rewrites the persisted record.
	Save(cp Checkpoint) error

	// Cleanup
	Close() error
}
