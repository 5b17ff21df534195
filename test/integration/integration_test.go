//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/pearlyx/internal/audio"
	"github.com/agenthands/pearlyx/internal/backend"
	"github.com/agenthands/pearlyx/internal/capture"
	"github.com/agenthands/pearlyx/internal/chat"
	"github.com/agenthands/pearlyx/internal/config"
	"github.com/agenthands/pearlyx/internal/navigation"
	"github.com/agenthands/pearlyx/internal/session"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	_ = godotenv.Load("../../.env")

	cfg, err := config.Load("../../config/config.toml")
	require.NoError(t, err)
	cfg.ApplyEnv()

	if os.Getenv("BACKEND_URL") == "" {
		t.Skip("Skipping integration test: BACKEND_URL not set")
	}
	return cfg
}

// silence returns one second of 16-bit mono PCM silence as a WAV file.
func silence() []byte {
	const rate = 16000
	samples := make([]byte, rate*2)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes()
}

func TestFullFlow(t *testing.T) {
	cfg := loadConfig(t)
	ctx := context.Background()
	log := zap.NewNop()

	store, err := session.New(cfg.Session, log)
	require.NoError(t, err)
	defer store.Close(ctx)

	client := backend.NewClient(cfg.Backend, cfg.Breaker, log)
	require.NoError(t, client.Ping(ctx))

	nav := navigation.NewRouter(store, cfg.Session.TTL.Duration)
	captures := capture.NewService(store, client, nav, cfg.Session.TTL.Duration, cfg.UI.MessageTTL.Duration, log)

	sid := uuid.NewString()
	name := "it-" + uuid.NewString()[:8] + ".wav"

	// Step 1: pick a file and upload it
	require.NoError(t, captures.SelectFile(ctx, sid, audio.New(silence(), name, "", audio.OriginFile)))
	out, err := captures.Submit(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, capture.MsgUploaded, out.Message)
	assert.NotEmpty(t, out.State.Filename)

	st, err := nav.Lookup(ctx, out.Token)
	require.NoError(t, err)
	require.True(t, st.Complete())

	// Step 2: analyze what was stored
	res, err := client.Analyze(ctx, st.Filename, cfg.Analysis.NeedsClassification)
	require.NoError(t, err)
	view := res.View(st.Filename)
	t.Logf("Analysis: %+v", view)
	assert.Equal(t, st.Filename, view.Filename)

	// Step 3: the service forgets the file again
	require.NoError(t, client.Delete(ctx, st.Filename))
}

func TestChatFlow(t *testing.T) {
	cfg := loadConfig(t)
	ctx := context.Background()
	log := zap.NewNop()

	store, err := session.New(cfg.Session, log)
	require.NoError(t, err)
	defer store.Close(ctx)

	client := backend.NewClient(cfg.Backend, cfg.Breaker, log)
	chats := chat.NewService(store, client, cfg.Session.TTL.Duration, log)

	sid := uuid.NewString()
	_, err = chats.Open(ctx, sid)
	require.NoError(t, err)

	added, err := chats.Send(ctx, sid, "What are early symptoms of Parkinson's?")
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.True(t, added[0].IsUser)
	assert.False(t, added[1].IsUser)
	assert.NotEmpty(t, added[1].Text)
	t.Logf("Reply: %s", added[1].Text)

	tr, err := chats.Transcript(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, tr.Messages, 2)
}
