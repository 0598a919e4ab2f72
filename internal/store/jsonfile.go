// Package store provides the persistent memory item backends.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"formless/pkg/formless"

	"github.com/google/uuid"
)

// JSONFileStore keeps all memory items in one JSON document on disk.
//
// Writes serialize on a mutex and go through a temp file plus atomic rename,
// so a concurrent reader sees either the previous document or the new one.
type JSONFileStore struct {
	mu   sync.Mutex
	path string
}

type jsonDocument struct {
	Items []formless.MemoryItem `json:"items"`
}

// NewJSONFileStore opens (or initializes) the JSON document at path.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("new json file store: empty path")
	}

	if dir := filepath.Dir(trimmedPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("new json file store mkdir %s: %w", dir, err)
		}
	}

	s := &JSONFileStore{path: trimmedPath}
	if _, err := os.Stat(trimmedPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("new json file store stat %s: %w", trimmedPath, err)
		}
		if err := s.writeDocument(jsonDocument{Items: []formless.MemoryItem{}}); err != nil {
			return nil, fmt.Errorf("new json file store initialize %s: %w", trimmedPath, err)
		}
		return s, nil
	}

	// A pre-existing document must parse at open time, not at first request.
	if _, err := s.readDocument(); err != nil {
		return nil, fmt.Errorf("new json file store: %w", err)
	}

	return s, nil
}

// ListAll returns every stored item in document order.
func (s *JSONFileStore) ListAll(ctx context.Context) ([]formless.MemoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("json store list all: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.readDocument()
	if err != nil {
		return nil, fmt.Errorf("json store list all: %w", err)
	}

	return document.Items, nil
}

// ListByIntents returns the items whose intent appears in intents, in document order.
func (s *JSONFileStore) ListByIntents(ctx context.Context, intents []string) ([]formless.MemoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("json store list by intents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.readDocument()
	if err != nil {
		return nil, fmt.Errorf("json store list by intents: %w", err)
	}

	wanted := intentSet(intents)
	matched := make([]formless.MemoryItem, 0, len(document.Items))
	for _, item := range document.Items {
		if _, exists := wanted[item.Intent]; exists {
			matched = append(matched, item)
		}
	}

	return matched, nil
}

// Get returns one item by ID.
func (s *JSONFileStore) Get(ctx context.Context, id string) (formless.MemoryItem, error) {
	if err := ctx.Err(); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store get: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.readDocument()
	if err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store get: %w", err)
	}

	for _, item := range document.Items {
		if item.ID == id {
			return item, nil
		}
	}

	return formless.MemoryItem{}, fmt.Errorf("json store get %s: %w", id, formless.ErrItemNotFound)
}

// Create stores a new item with a freshly assigned UUID.
func (s *JSONFileStore) Create(ctx context.Context, draft formless.MemoryDraft) (formless.MemoryItem, error) {
	if err := ctx.Err(); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store create: %w", err)
	}
	if err := draft.Validate(); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store create: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.readDocument()
	if err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store create: %w", err)
	}

	for _, existing := range document.Items {
		if existing.Intent == draft.Intent {
			return formless.MemoryItem{}, fmt.Errorf("json store create intent %q: %w", draft.Intent, formless.ErrDuplicateIntent)
		}
	}

	item := formless.MemoryItem{
		ID:     uuid.NewString(),
		Intent: draft.Intent,
		Value:  draft.Value,
		Kind:   draft.Kind,
	}
	document.Items = append(document.Items, item)

	if err := s.writeDocument(document); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store create: %w", err)
	}

	return item, nil
}

// Update replaces the content of an existing item, keeping its ID.
func (s *JSONFileStore) Update(ctx context.Context, id string, draft formless.MemoryDraft) (formless.MemoryItem, error) {
	if err := ctx.Err(); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store update: %w", err)
	}
	if err := draft.Validate(); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store update: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.readDocument()
	if err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store update: %w", err)
	}

	index := -1
	for i, item := range document.Items {
		if item.ID == id {
			index = i
			continue
		}
		if item.Intent == draft.Intent {
			return formless.MemoryItem{}, fmt.Errorf("json store update intent %q: %w", draft.Intent, formless.ErrDuplicateIntent)
		}
	}
	if index < 0 {
		return formless.MemoryItem{}, fmt.Errorf("json store update %s: %w", id, formless.ErrItemNotFound)
	}

	updated := formless.MemoryItem{
		ID:     id,
		Intent: draft.Intent,
		Value:  draft.Value,
		Kind:   draft.Kind,
	}
	document.Items[index] = updated

	if err := s.writeDocument(document); err != nil {
		return formless.MemoryItem{}, fmt.Errorf("json store update: %w", err)
	}

	return updated, nil
}

// Delete removes one item by ID.
func (s *JSONFileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("json store delete: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.readDocument()
	if err != nil {
		return fmt.Errorf("json store delete: %w", err)
	}

	kept := make([]formless.MemoryItem, 0, len(document.Items))
	for _, item := range document.Items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(document.Items) {
		return fmt.Errorf("json store delete %s: %w", id, formless.ErrItemNotFound)
	}
	document.Items = kept

	if err := s.writeDocument(document); err != nil {
		return fmt.Errorf("json store delete: %w", err)
	}

	return nil
}

// Close releases store resources. The JSON file store holds none between calls.
func (s *JSONFileStore) Close() error {
	return nil
}

func (s *JSONFileStore) readDocument() (jsonDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return jsonDocument{}, fmt.Errorf("read document %s: %w", s.path, err)
	}

	var document jsonDocument
	if err := json.Unmarshal(data, &document); err != nil {
		return jsonDocument{}, fmt.Errorf("parse document %s: %w", s.path, err)
	}
	if document.Items == nil {
		document.Items = []formless.MemoryItem{}
	}

	return document, nil
}

func (s *JSONFileStore) writeDocument(document jsonDocument) error {
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp document %s: %w", tempPath, err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write temp document %s: %w", tempPath, err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("sync temp document %s: %w", tempPath, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close temp document %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename temp document %s: %w", tempPath, err)
	}

	return nil
}

func intentSet(intents []string) map[string]struct{} {
	set := make(map[string]struct{}, len(intents))
	for _, intent := range intents {
		trimmed := strings.TrimSpace(intent)
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}

	return set
}

var _ formless.MemoryStore = (*JSONFileStore)(nil)
