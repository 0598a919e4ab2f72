package formless

import "errors"

var (
	// ErrNoCandidates indicates an empty candidate memory set before matching began.
	ErrNoCandidates = errors.New("formless: no candidate memory items")
	// ErrResolveFailed indicates that the batched intent resolution call failed.
	ErrResolveFailed = errors.New("formless: intent resolution failed")
	// ErrComposeFailed indicates that one field's value composition failed.
	ErrComposeFailed = errors.New("formless: value composition failed")
	// ErrUnknownMemoryKind indicates a memory item kind outside the data model.
	ErrUnknownMemoryKind = errors.New("formless: unknown memory item kind")
	// ErrItemNotFound indicates a memory item lookup miss.
	ErrItemNotFound = errors.New("formless: memory item not found")
	// ErrDuplicateIntent indicates a write that would duplicate an intent label.
	ErrDuplicateIntent = errors.New("formless: duplicate memory intent")
)
