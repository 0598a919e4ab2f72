package formless

import "context"

// MemoryStore is the persistent keyed collection of memory items.
//
// Implementations must serialize writes and keep each write atomic: a reader
// observes either the previous state or the new state, never a torn one.
// Item IDs are assigned by the store at creation and never change.
type MemoryStore interface {
	// ListAll returns every stored item in stable store order.
	ListAll(ctx context.Context) ([]MemoryItem, error)
	// ListByIntents returns the ListAll subsequence whose intents appear in intents.
	ListByIntents(ctx context.Context, intents []string) ([]MemoryItem, error)
	// Get returns one item by ID.
	//
	// ErrItemNotFound is returned when no item has that ID.
	Get(ctx context.Context, id string) (MemoryItem, error)
	// Create stores a new item and returns it with its assigned ID.
	//
	// ErrDuplicateIntent is returned when another item already carries the
	// draft's intent.
	Create(ctx context.Context, draft MemoryDraft) (MemoryItem, error)
	// Update replaces the content of an existing item, keeping its ID.
	Update(ctx context.Context, id string, draft MemoryDraft) (MemoryItem, error)
	// Delete removes one item by ID.
	Delete(ctx context.Context, id string) error
}
