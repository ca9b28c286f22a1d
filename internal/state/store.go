// Package state holds per-conversation key/value state for the bot. Each
// turn works on its own snapshot; writes are staged on the turn and
// persisted by Commit.
package state

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// Keys persisted for a conversation.
const (
	KeySessionID = "sessionID"
	KeyCSRFToken = "csrfToken"
)

// Backend persists the committed state of a conversation.
type Backend interface {
	// LoadState returns the committed values, or an empty map when the
	// conversation has no state.
	LoadState(ctx context.Context, conversationID string) (map[string]string, error)
	// SaveState replaces the committed values of the conversation.
	SaveState(ctx context.Context, conversationID string, values map[string]string) error
}

// Store opens turns over a Backend.
type Store struct {
	backend Backend
}

// New creates a Store over backend.
func New(backend Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("state: backend must not be nil")
	}
	return &Store{backend: backend}, nil
}

// Begin loads the committed state of a conversation once and returns a Turn
// over it. Writes staged on the Turn are never seen by other turns until
// they are committed.
func (s *Store) Begin(ctx context.Context, conversationID string) (*Turn, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("state: conversation id is required")
	}
	committed, err := s.backend.LoadState(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("state: load %q: %w", conversationID, err)
	}
	if committed == nil {
		committed = make(map[string]string)
	}
	return &Turn{
		backend:        s.backend,
		conversationID: conversationID,
		committed:      committed,
		staged:         make(map[string]string),
	}, nil
}

// Turn is the state view of a single turn. It is not safe for concurrent
// use; a turn is processed by one goroutine.
type Turn struct {
	backend        Backend
	conversationID string
	committed      map[string]string
	staged         map[string]string
}

// Get returns the value staged on this turn, otherwise the committed value
// read when the turn began.
func (t *Turn) Get(key string) (string, bool) {
	if v, ok := t.staged[key]; ok {
		return v, true
	}
	v, ok := t.committed[key]
	return v, ok
}

// Set stages a write visible to this turn's Get and persisted by Commit.
func (t *Turn) Set(key, value string) {
	t.staged[key] = value
}

// Commit persists the staged writes merged over the committed snapshot with
// one backend write. It is a no-op when nothing is staged. Staged writes are
// kept when the write fails so the caller may retry.
func (t *Turn) Commit(ctx context.Context) error {
	if len(t.staged) == 0 {
		return nil
	}
	merged := make(map[string]string, len(t.committed)+len(t.staged))
	maps.Copy(merged, t.committed)
	maps.Copy(merged, t.staged)
	if err := t.backend.SaveState(ctx, t.conversationID, merged); err != nil {
		return fmt.Errorf("state: commit %q: %w", t.conversationID, err)
	}
	t.committed = merged
	t.staged = make(map[string]string)
	return nil
}

// Discard drops the staged writes.
func (t *Turn) Discard() {
	clear(t.staged)
}
