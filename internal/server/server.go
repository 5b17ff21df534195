package server

import (
	"context"
	"embed"
	"fmt"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthands/pearlyx/internal/analysis"
	"github.com/agenthands/pearlyx/internal/backend"
	"github.com/agenthands/pearlyx/internal/capture"
	"github.com/agenthands/pearlyx/internal/chat"
	"github.com/agenthands/pearlyx/internal/config"
	"github.com/agenthands/pearlyx/internal/llm"
	"github.com/agenthands/pearlyx/internal/logging"
	"github.com/agenthands/pearlyx/internal/navigation"
	"github.com/agenthands/pearlyx/internal/session"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

type Server struct {
	Config   *config.Config
	Log      *zap.Logger
	Store    session.Store
	Nav      *navigation.Router
	Capture  *capture.Service
	Analyzer analysis.Analyzer
	Chat     *chat.Service
	started  time.Time

	// closed on shutdown after the store
	closers []io.Closer
}

// NewServer wires every component from cfg.
func NewServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	store, err := session.New(cfg.Session, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	client := backend.NewClient(cfg.Backend, cfg.Breaker, log)

	var analyzer analysis.Analyzer = client
	if cfg.Backend.PlaceholderAnalysis {
		log.Warn("Analysis answered by random placeholder predictions")
		analyzer = analysis.NewPlaceholder()
	}

	var closers []io.Closer
	var responder chat.Responder = client
	if p := strings.ToLower(cfg.Chat.Provider); p != "" && p != "backend" {
		llmClient, err := llm.NewClient(ctx, cfg.Chat)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
		}
		if c, ok := llmClient.(io.Closer); ok {
			closers = append(closers, c)
		}
		responder = llm.NewResponder(llmClient, cfg.Chat.SystemPrompt)
		log.Info("Chat answered by LLM provider", zap.String("provider", p))
	}

	nav := navigation.NewRouter(store, cfg.Session.TTL.Duration)

	return &Server{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Nav:      nav,
		Capture:  capture.NewService(store, client, nav, cfg.Session.TTL.Duration, cfg.UI.MessageTTL.Duration, log),
		Analyzer: analyzer,
		Chat:     chat.NewService(store, responder, cfg.Session.TTL.Duration, log),
		started:  time.Now(),
		closers:  closers,
	}, nil
}

func (s *Server) Close(ctx context.Context) error {
	errs := []error{s.Store.Close(ctx)}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(s.Log))

	tmpl := template.Must(template.New("").ParseFS(webFS, "web/templates/*.html"))
	r.SetHTMLTemplate(tmpl)

	static, _ := fs.Sub(webFS, "web/static")
	r.StaticFS("/static", http.FS(static))

	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	views := r.Group("/", s.sessionMiddleware())
	views.GET("/", s.UploadPage)
	views.GET("/about", s.AboutPage)
	views.GET("/analyze", s.AnalyzePage)
	views.GET("/chat", s.ChatPage)

	api := r.Group("/api", s.sessionMiddleware())
	api.GET("/capture", s.CaptureStatus)
	api.POST("/capture/file", s.SelectFile)
	api.POST("/capture/recording", s.StopRecording)
	api.DELETE("/capture", s.ReleaseCapture)
	api.DELETE("/capture/file", s.DeleteFile)
	api.POST("/capture/submit", s.Submit)
	api.POST("/analyze", s.Analyze)
	api.GET("/chat", s.ChatTranscript)
	api.POST("/chat", s.SendChat)

	return r
}

func (s *Server) Health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if err := s.Store.Ping(c.Request.Context()); err != nil {
		s.Log.Warn("Session store ping failed", zap.Error(err))
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}
