package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/pearlyx/internal/audio"
	"github.com/agenthands/pearlyx/internal/backend"
	"github.com/agenthands/pearlyx/internal/navigation"
	"github.com/agenthands/pearlyx/internal/session"
)

const sid = "session-1"

func newTestService(t *testing.T, up *MockUploader) (*Service, *session.Memory) {
	t.Helper()
	store := session.NewMemory(time.Hour, zap.NewNop())
	t.Cleanup(func() { store.Close(context.Background()) })

	nav := navigation.NewRouter(store, time.Minute)
	return NewService(store, up, nav, time.Minute, 5*time.Second, zap.NewNop()), store
}

func file(name string) *audio.Source {
	return audio.New([]byte("data-"+name), name, "audio/wav", audio.OriginFile)
}

func TestSelectFileReplaces(t *testing.T) {
	s, _ := newTestService(t, &MockUploader{})
	ctx := context.Background()

	require.NoError(t, s.SelectFile(ctx, sid, file("first.wav")))
	st, err := s.Status(ctx, sid)
	require.NoError(t, err)
	require.NotNil(t, st.Candidate)
	assert.Equal(t, "first.wav", st.Candidate.Name)

	require.NoError(t, s.SelectFile(ctx, sid, file("second.wav")))
	p, err := s.Pending(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "second.wav", p.File.Name)
	assert.Nil(t, p.Recording)
}

func TestRecordingSupersedesFile(t *testing.T) {
	s, _ := newTestService(t, &MockUploader{})
	ctx := context.Background()

	require.NoError(t, s.SelectFile(ctx, sid, file("picked.wav")))
	rec := audio.New([]byte("mic"), "recorded-audio.wav", "audio/wav", audio.OriginFile)
	require.NoError(t, s.StopRecording(ctx, sid, rec))

	p, err := s.Pending(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "recorded-audio.wav", p.Candidate().Name)
	assert.Equal(t, audio.OriginRecording, p.Candidate().Origin)

	// still the recording after picking another file
	require.NoError(t, s.SelectFile(ctx, sid, file("later.wav")))
	p, err = s.Pending(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "recorded-audio.wav", p.Candidate().Name)
	assert.Equal(t, "later.wav", p.File.Name)
}

func TestSubmitWithoutSource(t *testing.T) {
	up := &MockUploader{}
	s, _ := newTestService(t, up)
	ctx := context.Background()

	out, err := s.Submit(ctx, sid)
	assert.Nil(t, out)

	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "No file selected.", rej.Message)
	assert.Empty(t, up.Uploaded)

	st, err := s.Status(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "No file selected.", st.Message)
}

func TestSubmitSuccess(t *testing.T) {
	up := &MockUploader{Result: &backend.UploadResult{Filepath: "/x", Filename: "a.wav"}}
	s, store := newTestService(t, up)
	ctx := context.Background()

	require.NoError(t, s.SelectFile(ctx, sid, file("a.wav")))
	out, err := s.Submit(ctx, sid)
	require.NoError(t, err)

	assert.Equal(t, navigation.State{Filepath: "/x", Filename: "a.wav"}, out.State)
	assert.Equal(t, navigation.ResultsRoute(out.Token), out.Route)
	require.Len(t, up.Uploaded, 1)
	assert.Equal(t, "a.wav", up.Uploaded[0].Name)

	nav := navigation.NewRouter(store, time.Minute)
	st, err := nav.Lookup(ctx, out.Token)
	require.NoError(t, err)
	assert.Equal(t, &navigation.State{Filepath: "/x", Filename: "a.wav"}, st)

	p, err := s.Pending(ctx, sid)
	require.NoError(t, err)
	assert.Nil(t, p.Candidate())
}

func TestSubmitUploadsRecording(t *testing.T) {
	up := &MockUploader{Result: &backend.UploadResult{Filepath: "uploads/recorded-audio.wav", Filename: "recorded-audio.wav"}}
	s, _ := newTestService(t, up)
	ctx := context.Background()

	require.NoError(t, s.SelectFile(ctx, sid, file("picked.wav")))
	require.NoError(t, s.StopRecording(ctx, sid, audio.New([]byte("mic"), "recorded-audio.wav", "audio/wav", "")))

	_, err := s.Submit(ctx, sid)
	require.NoError(t, err)
	require.Len(t, up.Uploaded, 1)
	assert.Equal(t, "recorded-audio.wav", up.Uploaded[0].Name)
}

func TestSubmitFailureMessages(t *testing.T) {
	for name, tc := range map[string]struct {
		err  error
		want string
	}{
		"service error": {&backend.APIError{Op: "upload", StatusCode: 400, Message: "Invalid file type"}, "Error: Invalid file type"},
		"transport":     {&backend.TransportError{Op: "upload", Err: errors.New("refused")}, "Error uploading file."},
	} {
		t.Run(name, func(t *testing.T) {
			up := &MockUploader{Err: tc.err}
			s, store := newTestService(t, up)
			ctx := context.Background()

			now := time.Now()
			store.SetClock(func() time.Time { return now })

			require.NoError(t, s.SelectFile(ctx, sid, file("a.wav")))
			_, err := s.Submit(ctx, sid)

			var rej *Rejection
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tc.want, rej.Message)

			st, err := s.Status(ctx, sid)
			require.NoError(t, err)
			assert.Equal(t, tc.want, st.Message)
			// nothing released on failure
			assert.NotNil(t, st.Candidate)

			now = now.Add(5 * time.Second)
			st, err = s.Status(ctx, sid)
			require.NoError(t, err)
			assert.Empty(t, st.Message)
		})
	}
}

func TestDeleteFile(t *testing.T) {
	up := &MockUploader{}
	s, _ := newTestService(t, up)
	ctx := context.Background()

	require.NoError(t, s.SelectFile(ctx, sid, file("a.wav")))
	require.NoError(t, s.DeleteFile(ctx, sid))

	assert.Equal(t, []string{"a.wav"}, up.Deleted)
	st, err := s.Status(ctx, sid)
	require.NoError(t, err)
	assert.Nil(t, st.File)
	assert.Equal(t, "File deleted successfully!", st.Message)
}

func TestDeleteFileFailure(t *testing.T) {
	up := &MockUploader{DeleteErr: &backend.APIError{Op: "delete", StatusCode: 404, Message: "File not found"}}
	s, _ := newTestService(t, up)
	ctx := context.Background()

	require.NoError(t, s.SelectFile(ctx, sid, file("a.wav")))
	err := s.DeleteFile(ctx, sid)

	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Error: File not found", rej.Message)

	p, err := s.Pending(ctx, sid)
	require.NoError(t, err)
	assert.NotNil(t, p.File)
}

func TestRelease(t *testing.T) {
	s, _ := newTestService(t, &MockUploader{})
	ctx := context.Background()

	require.NoError(t, s.SelectFile(ctx, sid, file("a.wav")))
	require.NoError(t, s.Release(ctx, sid))

	st, err := s.Status(ctx, sid)
	require.NoError(t, err)
	assert.Nil(t, st.Candidate)
}

func TestSessionsAreIsolated(t *testing.T) {
	s, _ := newTestService(t, &MockUploader{})
	ctx := context.Background()

	require.NoError(t, s.SelectFile(ctx, "a", file("a.wav")))
	st, err := s.Status(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, st.Candidate)
}
