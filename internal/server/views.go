package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) page(c *gin.Context, name, active string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Active"] = active
	data["Year"] = time.Now().Year()
	c.HTML(http.StatusOK, name, data)
}

func (s *Server) UploadPage(c *gin.Context) {
	status, err := s.Capture.Status(c.Request.Context(), sessionID(c))
	if err != nil {
		s.Log.Error("Failed to load capture status", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load page")
		return
	}
	s.page(c, "upload.html", "home", gin.H{
		"Status":         status,
		"MessageTTLms":   s.Config.UI.MessageTTL.Milliseconds(),
		"RecordingName":  s.Config.Upload.RecordingName,
		"MaxUploadBytes": s.Config.Upload.MaxBytes,
	})
}

func (s *Server) AboutPage(c *gin.Context) {
	s.page(c, "about.html", "about", nil)
}

// AnalyzePage renders the results shell; the analysis itself is fetched by
// the page. Without navigation state it renders the placeholder and nothing
// is sent to the service.
func (s *Server) AnalyzePage(c *gin.Context) {
	token := c.Query("state")
	st, err := s.Nav.Lookup(c.Request.Context(), token)
	if err != nil {
		s.Log.Warn("Failed to load navigation state", zap.Error(err))
	}
	if !st.Complete() {
		s.page(c, "nofile.html", "", nil)
		return
	}

	s.page(c, "analyze.html", "", gin.H{
		"Filename": st.Filename,
		"Filepath": st.Filepath,
		"Token":    token,
	})
}

// ChatPage starts a fresh transcript every time the view is opened.
func (s *Server) ChatPage(c *gin.Context) {
	if _, err := s.Chat.Open(c.Request.Context(), sessionID(c)); err != nil {
		s.Log.Error("Failed to open chat transcript", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load page")
		return
	}
	s.page(c, "chat.html", "chat", nil)
}
