// Package docstore holds document payloads in insertion order, aligned by position with
// the vector index.
package docstore

import (
	"errors"
	"fmt"

	"github.com/hyperjump/vecstore/internal/models"
)

// ErrOutOfRange is returned for a position outside [0, Len()).
var ErrOutOfRange = errors.New("docstore: position out of range")

// Store is an append-only positional document store. It does no locking.
type Store struct {
	docs []models.Document
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// FromDocuments rebuilds a store from documents in position order.
func FromDocuments(docs []models.Document) *Store {
	return &Store{docs: append([]models.Document(nil), docs...)}
}

// Append adds docs and returns the position of the first one.
func (s *Store) Append(docs []models.Document) int {
	first := len(s.docs)
	s.docs = append(s.docs, docs...)
	return first
}

// Get returns a copy of the document at pos.
func (s *Store) Get(pos int) (models.Document, error) {
	if pos < 0 || pos >= len(s.docs) {
		return models.Document{}, fmt.Errorf("%w: %d (count %d)", ErrOutOfRange, pos, len(s.docs))
	}
	return s.docs[pos].Clone(), nil
}

// Len returns the number of documents.
func (s *Store) Len() int {
	return len(s.docs)
}

// Truncate drops every document at position n and above. Used to undo an Append.
func (s *Store) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(s.docs) {
		return
	}
	clear(s.docs[n:])
	s.docs = s.docs[:n]
}

// All returns the documents in position order. The slice is a copy; documents share
// metadata with the store and must not be modified.
func (s *Store) All() []models.Document {
	return append([]models.Document(nil), s.docs...)
}
