package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/pearlyx/internal/session"
)

// State is the data carried from the upload view to the results view.
type State struct {
	Filepath string `json:"filepath"`
	Filename string `json:"filename"`
}

// Complete mirrors the results view's guard: both fields must be set.
func (s *State) Complete() bool {
	return s != nil && s.Filepath != "" && s.Filename != ""
}

// Router hands out opaque tokens for navigation state.
type Router struct {
	store session.Store
	ttl   time.Duration
	newID func() string
}

func NewRouter(store session.Store, ttl time.Duration) *Router {
	return &Router{store: store, ttl: ttl, newID: uuid.NewString}
}

func key(token string) string {
	return "nav:" + token
}

// Push stores st and returns the route that carries it.
func (r *Router) Push(ctx context.Context, st State) (token string, route string, err error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", "", err
	}
	token = r.newID()
	if err := r.store.Set(ctx, key(token), data, r.ttl); err != nil {
		return "", "", fmt.Errorf("failed to save navigation state: %w", err)
	}
	return token, ResultsRoute(token), nil
}

// Lookup returns nil without error when the token is empty or unknown.
func (r *Router) Lookup(ctx context.Context, token string) (*State, error) {
	if token == "" {
		return nil, nil
	}
	data, err := r.store.Get(ctx, key(token))
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load navigation state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt navigation state: %w", err)
	}
	return &st, nil
}

func ResultsRoute(token string) string {
	return "/analyze?state=" + token
}
