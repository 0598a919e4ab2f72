package formless

import (
	"fmt"
	"strings"
)

// MemoryKind identifies how a memory item's value participates in composition.
type MemoryKind string

const (
	// MemoryKindLiteral marks a value that is returned verbatim.
	MemoryKindLiteral MemoryKind = "literal"
	// MemoryKindTemplate marks a value used as generation instructions.
	MemoryKindTemplate MemoryKind = "template"
)

// Validate checks whether this kind value is supported.
func (k MemoryKind) Validate() error {
	switch k {
	case MemoryKindLiteral, MemoryKindTemplate:
		return nil
	default:
		return fmt.Errorf("validate memory kind: %w: %q", ErrUnknownMemoryKind, k)
	}
}

// MemoryItem is one stored unit of rememberable user data.
type MemoryItem struct {
	// ID is assigned once at creation and immutable afterward.
	ID string `json:"id"`
	// Intent is the stable label naming what this item represents.
	Intent string `json:"intent"`
	// Value is the literal text or the generation template body.
	Value string `json:"value"`
	// Kind selects literal passthrough or template generation.
	Kind MemoryKind `json:"kind"`
}

// Validate checks one stored item contract.
func (m MemoryItem) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("validate memory item: missing id")
	}
	if err := m.Draft().Validate(); err != nil {
		return fmt.Errorf("validate memory item: %w", err)
	}

	return nil
}

// Draft returns the caller-editable content of this item.
func (m MemoryItem) Draft() MemoryDraft {
	return MemoryDraft{
		Intent: m.Intent,
		Value:  m.Value,
		Kind:   m.Kind,
	}
}

// MemoryDraft is the caller-supplied item content for create and update.
type MemoryDraft struct {
	// Intent is the stable label naming what this item represents.
	Intent string `json:"intent"`
	// Value is the literal text or the generation template body.
	Value string `json:"value"`
	// Kind selects literal passthrough or template generation.
	Kind MemoryKind `json:"kind"`
}

// Validate checks one draft contract.
func (d MemoryDraft) Validate() error {
	if strings.TrimSpace(d.Intent) == "" {
		return fmt.Errorf("validate memory draft: missing intent")
	}
	if strings.TrimSpace(d.Value) == "" {
		return fmt.Errorf("validate memory draft: missing value")
	}
	if err := d.Kind.Validate(); err != nil {
		return fmt.Errorf("validate memory draft: %w", err)
	}

	return nil
}
