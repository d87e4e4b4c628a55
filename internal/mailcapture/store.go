package mailcapture

import (
	"context"
	"sync"
)

// Kind is the purpose of a captured token.
type Kind string

const (
	KindActivation Kind = "Activation"
	KindReset      Kind = "Reset"
)

// Store keeps the latest token per kind and username.
type Store struct {
	mu      sync.Mutex
	tokens  map[Kind]map[string]string
	changed chan struct{}
	waiters int
}

func NewStore() *Store {
	return &Store{
		tokens: map[Kind]map[string]string{
			KindActivation: {},
			KindReset:      {},
		},
		changed: make(chan struct{}),
	}
}

// Put records token and wakes every waiter.
func (s *Store) Put(kind Kind, username, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens[kind] == nil {
		s.tokens[kind] = map[string]string{}
	}
	s.tokens[kind][username] = token
	close(s.changed)
	s.changed = make(chan struct{})
}

// Get returns the token of username, if captured.
func (s *Store) Get(kind Kind, username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[kind][username]
	return tok, ok
}

// Wait blocks until a token for username is captured or ctx is done.
func (s *Store) Wait(ctx context.Context, kind Kind, username string) (string, error) {
	s.mu.Lock()
	s.waiters++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.waiters--
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		tok, ok := s.tokens[kind][username]
		changed := s.changed
		s.mu.Unlock()
		if ok {
			return tok, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Waiters reports how many Wait calls are blocked.
func (s *Store) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters
}
