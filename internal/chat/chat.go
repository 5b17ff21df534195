package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/pearlyx/internal/backend"
	"github.com/agenthands/pearlyx/internal/session"
	"github.com/agenthands/pearlyx/internal/telemetry"
)

const (
	MsgServiceFailure   = "Sorry, I couldn't process your message. Please try again."
	MsgTransportFailure = "Sorry, there was an error. Please try again later."
)

var ErrEmptyMessage = errors.New("chat: empty message")

type Message struct {
	Text      string    `json:"text"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// Responder produces the system reply to one user message.
type Responder interface {
	Chat(ctx context.Context, message string) (string, error)
}

type Transcript struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	// Pending counts submissions still waiting for a reply.
	Pending int `json:"pending"`
}

type Service struct {
	store     session.Store
	responder Responder
	ttl       time.Duration
	log       *zap.Logger
	now       func() time.Time
	newID     func() string

	// ptrMu serializes reads and writes of the current-transcript pointer.
	ptrMu sync.Mutex

	mu      sync.Mutex
	pending map[string]int
}

func NewService(store session.Store, responder Responder, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		responder: responder,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
		pending:   make(map[string]int),
	}
}

func currentKey(sid string) string { return "chat:" + sid + ":current" }
func logKey(id string) string      { return "chat:transcript:" + id }

// Open starts a fresh transcript for the session; replies still in flight
// for the previous one will be dropped.
func (s *Service) Open(ctx context.Context, sid string) (string, error) {
	s.ptrMu.Lock()
	defer s.ptrMu.Unlock()
	return s.open(ctx, sid)
}

func (s *Service) open(ctx context.Context, sid string) (string, error) {
	id := s.newID()
	if err := s.store.Set(ctx, currentKey(sid), []byte(id), s.ttl); err != nil {
		return "", fmt.Errorf("failed to open transcript: %w", err)
	}
	return id, nil
}

// current returns the session's transcript id, opening one if needed. Every
// use slides the pointer's expiry so an active chat keeps its transcript.
func (s *Service) current(ctx context.Context, sid string) (string, error) {
	s.ptrMu.Lock()
	defer s.ptrMu.Unlock()

	id, err := s.store.Get(ctx, currentKey(sid))
	if errors.Is(err, session.ErrNotFound) {
		return s.open(ctx, sid)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load transcript: %w", err)
	}
	if err := s.store.Set(ctx, currentKey(sid), id, s.ttl); err != nil {
		return "", fmt.Errorf("failed to refresh transcript: %w", err)
	}
	return string(id), nil
}

func (s *Service) isCurrent(ctx context.Context, sid, id string) bool {
	cur, err := s.store.Get(ctx, currentKey(sid))
	return err == nil && string(cur) == id
}

func (s *Service) append(ctx context.Context, id string, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.store.Append(ctx, logKey(id), data, s.ttl); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	author := "system"
	if m.IsUser {
		author = "user"
	}
	telemetry.ChatMessagesTotal.WithLabelValues(author).Inc()
	return nil
}

func (s *Service) track(id string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] += delta
	if s.pending[id] <= 0 {
		delete(s.pending, id)
	}
}

// Send appends the user's message at once, asks the responder, and appends
// the reply (or a canned failure) when it resolves. It returns the messages
// it appended; the reply is omitted when the transcript was abandoned in
// the meantime.
func (s *Service) Send(ctx context.Context, sid, text string) ([]Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	id, err := s.current(ctx, sid)
	if err != nil {
		return nil, err
	}

	user := Message{Text: text, IsUser: true, Timestamp: s.now()}
	if err := s.append(ctx, id, user); err != nil {
		return nil, err
	}

	s.track(id, 1)
	reply, err := s.responder.Chat(ctx, text)
	s.track(id, -1)

	if ctx.Err() != nil || !s.isCurrent(context.WithoutCancel(ctx), sid, id) {
		telemetry.DroppedResponsesTotal.WithLabelValues("chat").Inc()
		s.log.Debug("Dropping chat reply for abandoned transcript", zap.String("transcript", id))
		return []Message{user}, nil
	}

	text = reply
	if err != nil {
		text = failureMessage(err)
		s.log.Info("Chat responder failed", zap.String("transcript", id), zap.Error(err))
	}

	system := Message{Text: text, IsUser: false, Timestamp: s.now()}
	if err := s.append(ctx, id, system); err != nil {
		return []Message{user}, err
	}
	return []Message{user, system}, nil
}

// Transcript returns the session's current transcript.
func (s *Service) Transcript(ctx context.Context, sid string) (*Transcript, error) {
	id, err := s.current(ctx, sid)
	if err != nil {
		return nil, err
	}

	items, err := s.store.List(ctx, logKey(id))
	if err != nil {
		return nil, err
	}

	t := &Transcript{ID: id, Messages: make([]Message, 0, len(items))}
	for _, item := range items {
		var m Message
		if err := json.Unmarshal(item, &m); err != nil {
			s.log.Warn("Skipping corrupt chat message", zap.Error(err))
			continue
		}
		t.Messages = append(t.Messages, m)
	}

	s.mu.Lock()
	t.Pending = s.pending[id]
	s.mu.Unlock()
	return t, nil
}

func failureMessage(err error) string {
	if _, ok := backend.AsAPIError(err); ok {
		return MsgServiceFailure
	}
	return MsgTransportFailure
}
