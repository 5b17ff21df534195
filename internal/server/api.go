package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/pearlyx/internal/audio"
	"github.com/agenthands/pearlyx/internal/capture"
	"github.com/agenthands/pearlyx/internal/chat"
	"github.com/agenthands/pearlyx/internal/telemetry"
)

const MsgAnalysisFailed = "Unable to analyze file."

func (s *Server) respondStatus(c *gin.Context, code int) {
	status, err := s.Capture.Status(c.Request.Context(), sessionID(c))
	if err != nil {
		s.Log.Error("Failed to load capture status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load capture state"})
		return
	}
	c.JSON(code, gin.H{
		"status":         status,
		"clear_after_ms": s.Config.UI.MessageTTL.Milliseconds(),
	})
}

func (s *Server) respondRejection(c *gin.Context, err error, code int) {
	var rej *capture.Rejection
	if errors.As(err, &rej) {
		c.JSON(code, gin.H{
			"error":          rej.Message,
			"clear_after_ms": s.Config.UI.MessageTTL.Milliseconds(),
		})
		return
	}
	s.Log.Error("Capture action failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
}

func (s *Server) CaptureStatus(c *gin.Context) {
	s.respondStatus(c, http.StatusOK)
}

// readAudio pulls the multipart "file" part out of the request.
func (s *Server) readAudio(c *gin.Context, origin audio.Origin) (*audio.Source, error) {
	limit := s.Config.Upload.MaxBytes
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := fh.Filename
	declared := fh.Header.Get("Content-Type")
	if origin == audio.OriginRecording {
		name = s.Config.Upload.RecordingName
		if declared == "" || declared == "application/octet-stream" {
			declared = s.Config.Upload.RecordingType
		}
	}
	return audio.Read(f, name, declared, origin, limit)
}

func (s *Server) SelectFile(c *gin.Context) {
	src, err := s.readAudio(c, audio.OriginFile)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := s.Capture.SelectFile(c.Request.Context(), sessionID(c), src); err != nil {
		s.respondRejection(c, err, http.StatusInternalServerError)
		return
	}
	s.respondStatus(c, http.StatusOK)
}

func (s *Server) StopRecording(c *gin.Context) {
	src, err := s.readAudio(c, audio.OriginRecording)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := s.Capture.StopRecording(c.Request.Context(), sessionID(c), src); err != nil {
		s.respondRejection(c, err, http.StatusInternalServerError)
		return
	}
	s.respondStatus(c, http.StatusOK)
}

func (s *Server) ReleaseCapture(c *gin.Context) {
	if err := s.Capture.Release(c.Request.Context(), sessionID(c)); err != nil {
		s.respondRejection(c, err, http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteFile(c *gin.Context) {
	err := s.Capture.DeleteFile(c.Request.Context(), sessionID(c))
	if err != nil {
		code := http.StatusBadGateway
		var rej *capture.Rejection
		if errors.As(err, &rej) && rej.Err == nil {
			code = http.StatusBadRequest
		}
		s.respondRejection(c, err, code)
		return
	}
	s.respondStatus(c, http.StatusOK)
}

func (s *Server) Submit(c *gin.Context) {
	out, err := s.Capture.Submit(c.Request.Context(), sessionID(c))
	if err != nil {
		code := http.StatusBadGateway
		var rej *capture.Rejection
		if errors.As(err, &rej) && rej.Err == nil {
			code = http.StatusBadRequest
		}
		s.respondRejection(c, err, code)
		return
	}
	c.JSON(http.StatusOK, out)
}

type AnalyzeRequest struct {
	State string `json:"state"`
}

func (s *Server) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	st, err := s.Nav.Lookup(ctx, req.State)
	if err != nil {
		s.Log.Warn("Failed to load navigation state", zap.Error(err))
	}
	if !st.Complete() {
		c.JSON(http.StatusNotFound, gin.H{"error": "No File Found"})
		return
	}

	res, err := s.Analyzer.Analyze(ctx, st.Filename, s.Config.Analysis.NeedsClassification)
	if ctx.Err() != nil {
		// the results view is gone; nobody is waiting for this answer
		telemetry.DroppedResponsesTotal.WithLabelValues("analyze").Inc()
		s.Log.Debug("Dropping analysis for departed view", zap.String("file", st.Filename))
		c.Abort()
		return
	}
	if err != nil {
		s.Log.Info("Analysis failed", zap.String("file", st.Filename), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": MsgAnalysisFailed})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": res.View(st.Filename),
		"raw":    res.Raw(),
	})
}

type ChatRequest struct {
	Message string `json:"message"`
}

func (s *Server) ChatTranscript(c *gin.Context) {
	t, err := s.Chat.Transcript(c.Request.Context(), sessionID(c))
	if err != nil {
		s.Log.Error("Failed to load transcript", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transcript"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) SendChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	added, err := s.Chat.Send(c.Request.Context(), sessionID(c), req.Message)
	if errors.Is(err, chat.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is empty"})
		return
	}
	if err != nil {
		s.Log.Error("Failed to record chat message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
		return
	}
	if c.Request.Context().Err() != nil {
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": added})
}
