package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/pearlyx/internal/audio"
	"github.com/agenthands/pearlyx/internal/backend"
	"github.com/agenthands/pearlyx/internal/navigation"
	"github.com/agenthands/pearlyx/internal/session"
	"github.com/agenthands/pearlyx/internal/telemetry"
)

// User-visible messages.
const (
	MsgNoFile        = "No file selected."
	MsgUploaded      = "File uploaded successfully!"
	MsgUploadFailed  = "Error uploading file."
	MsgDeleted       = "File deleted successfully!"
	MsgDeleteFailed  = "Error deleting file."
	msgServicePrefix = "Error: "
)

// Uploader is the part of the analysis service the upload view needs.
type Uploader interface {
	Upload(ctx context.Context, src *audio.Source) (*backend.UploadResult, error)
	Delete(ctx context.Context, filename string) error
}

// Rejection is a failed action; Message is what the user sees.
type Rejection struct {
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s (%v)", r.Message, r.Err)
	}
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Pending holds the two possible upload sources of one browser session.
type Pending struct {
	File      *audio.Source `json:"file,omitempty"`
	Recording *audio.Source `json:"recording,omitempty"`
}

// Candidate is what Submit would upload: a recording always wins over a
// picked file.
func (p Pending) Candidate() *audio.Source {
	if p.Recording != nil {
		return p.Recording
	}
	return p.File
}

type Status struct {
	Candidate *audio.Summary `json:"candidate"`
	File      *audio.Summary `json:"file"`
	Recording *audio.Summary `json:"recording"`
	Message   string         `json:"message"`
}

// Outcome of a successful submit.
type Outcome struct {
	Route   string           `json:"redirect"`
	Token   string           `json:"state"`
	State   navigation.State `json:"navigation"`
	Message string           `json:"message"`
}

type Service struct {
	store      session.Store
	uploader   Uploader
	nav        *navigation.Router
	ttl        time.Duration
	messageTTL time.Duration
	log        *zap.Logger

	mu sync.Mutex
}

func NewService(store session.Store, uploader Uploader, nav *navigation.Router, ttl, messageTTL time.Duration, log *zap.Logger) *Service {
	return &Service{
		store:      store,
		uploader:   uploader,
		nav:        nav,
		ttl:        ttl,
		messageTTL: messageTTL,
		log:        log,
	}
}

func pendingKey(sid string) string { return "capture:" + sid }
func messageKey(sid string) string { return "capture:" + sid + ":message" }

func (s *Service) load(ctx context.Context, sid string) (Pending, error) {
	var p Pending
	data, err := s.store.Get(ctx, pendingKey(sid))
	if errors.Is(err, session.ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to load pending audio: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Pending{}, fmt.Errorf("corrupt pending audio: %w", err)
	}
	return p, nil
}

func (s *Service) save(ctx context.Context, sid string, p Pending) error {
	if p.File == nil && p.Recording == nil {
		return s.store.Delete(ctx, pendingKey(sid))
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, pendingKey(sid), data, s.ttl)
}

func (s *Service) update(ctx context.Context, sid string, fn func(*Pending)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, sid)
	if err != nil {
		return err
	}
	fn(&p)
	return s.save(ctx, sid, p)
}

// setMessage stores a status line that disappears after messageTTL.
func (s *Service) setMessage(ctx context.Context, sid, msg string) {
	if err := s.store.Set(ctx, messageKey(sid), []byte(msg), s.messageTTL); err != nil {
		s.log.Warn("Failed to store capture message", zap.Error(err))
	}
}

// SelectFile makes src the pending file, replacing any earlier one.
func (s *Service) SelectFile(ctx context.Context, sid string, src *audio.Source) error {
	src.Origin = audio.OriginFile
	return s.update(ctx, sid, func(p *Pending) { p.File = src })
}

// StopRecording makes the finished recording the upload candidate.
func (s *Service) StopRecording(ctx context.Context, sid string, src *audio.Source) error {
	src.Origin = audio.OriginRecording
	return s.update(ctx, sid, func(p *Pending) { p.Recording = src })
}

func (s *Service) Pending(ctx context.Context, sid string) (Pending, error) {
	return s.load(ctx, sid)
}

// Release drops everything the session holds for the upload view.
func (s *Service) Release(ctx context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, pendingKey(sid)); err != nil {
		return err
	}
	return s.store.Delete(ctx, messageKey(sid))
}

func (s *Service) Status(ctx context.Context, sid string) (*Status, error) {
	p, err := s.load(ctx, sid)
	if err != nil {
		return nil, err
	}

	st := &Status{}
	if c := p.Candidate(); c != nil {
		sum := c.Summary()
		st.Candidate = &sum
	}
	if p.File != nil {
		sum := p.File.Summary()
		st.File = &sum
	}
	if p.Recording != nil {
		sum := p.Recording.Summary()
		st.Recording = &sum
	}

	msg, err := s.store.Get(ctx, messageKey(sid))
	if err == nil {
		st.Message = string(msg)
	} else if !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}
	return st, nil
}

// Submit uploads the candidate and, on success, pushes the navigation state
// for the results view. Nothing is sent when there is no candidate.
func (s *Service) Submit(ctx context.Context, sid string) (*Outcome, error) {
	p, err := s.load(ctx, sid)
	if err != nil {
		return nil, err
	}

	src := p.Candidate()
	if src == nil {
		s.setMessage(ctx, sid, MsgNoFile)
		return nil, &Rejection{Message: MsgNoFile}
	}

	res, err := s.uploader.Upload(ctx, src)
	if err != nil {
		msg := failureMessage(err, MsgUploadFailed)
		s.setMessage(ctx, sid, msg)
		telemetry.UploadsTotal.WithLabelValues(string(src.Origin), "failed").Inc()
		s.log.Info("Upload failed", zap.String("file", src.Name), zap.Error(err))
		return nil, &Rejection{Message: msg, Err: err}
	}
	telemetry.UploadsTotal.WithLabelValues(string(src.Origin), "ok").Inc()

	st := navigation.State{Filepath: res.Filepath, Filename: res.Filename}
	token, route, err := s.nav.Push(ctx, st)
	if err != nil {
		return nil, err
	}

	// the upload view is left behind; its sources go with it
	if err := s.Release(ctx, sid); err != nil {
		s.log.Warn("Failed to release pending audio", zap.Error(err))
	}

	s.log.Info("Uploaded audio",
		zap.String("file", res.Filename),
		zap.String("origin", string(src.Origin)),
		zap.Int("bytes", src.Size()),
	)
	return &Outcome{Route: route, Token: token, State: st, Message: MsgUploaded}, nil
}

// DeleteFile asks the service to remove the pending file and forgets it.
func (s *Service) DeleteFile(ctx context.Context, sid string) error {
	p, err := s.load(ctx, sid)
	if err != nil {
		return err
	}
	if p.File == nil {
		s.setMessage(ctx, sid, MsgNoFile)
		return &Rejection{Message: MsgNoFile}
	}

	if err := s.uploader.Delete(ctx, p.File.Name); err != nil {
		msg := failureMessage(err, MsgDeleteFailed)
		s.setMessage(ctx, sid, msg)
		return &Rejection{Message: msg, Err: err}
	}

	if err := s.update(ctx, sid, func(p *Pending) { p.File = nil }); err != nil {
		return err
	}
	s.setMessage(ctx, sid, MsgDeleted)
	return nil
}

func failureMessage(err error, fallback string) string {
	if apiErr, ok := backend.AsAPIError(err); ok {
		return msgServicePrefix + apiErr.Message
	}
	return fallback
}
