package capture

import (
	"context"

	"github.com/agenthands/pearlyx/internal/audio"
	"github.com/agenthands/pearlyx/internal/backend"
)

type MockUploader struct {
	Result    *backend.UploadResult
	Err       error
	DeleteErr error

	Uploaded []*audio.Source
	Deleted  []string
}

func (m *MockUploader) Upload(ctx context.Context, src *audio.Source) (*backend.UploadResult, error) {
	m.Uploaded = append(m.Uploaded, src)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

func (m *MockUploader) Delete(ctx context.Context, filename string) error {
	m.Deleted = append(m.Deleted, filename)
	return m.DeleteErr
}
