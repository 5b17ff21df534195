package audio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Origin string

const (
	OriginFile      Origin = "file"
	OriginRecording Origin = "recording"
)

// Source is an audio clip waiting to be uploaded: a picked file or a
// finished recording.
type Source struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Origin   Origin `json:"origin"`
	Data     []byte `json:"data"`
}

// Size is the payload length in bytes.
func (s *Source) Size() int {
	return len(s.Data)
}

// Summary is what the views show about a pending source.
type Summary struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Origin   Origin `json:"origin"`
	Size     int    `json:"size"`
}

func (s *Source) Summary() Summary {
	return Summary{Name: s.Name, MIMEType: s.MIMEType, Origin: s.Origin, Size: s.Size()}
}

// Read drains r into a Source, refusing payloads above maxBytes when
// maxBytes is positive. The declared type wins unless it is empty or
// generic, in which case the type is sniffed from the payload.
func Read(r io.Reader, name, declaredType string, origin Origin, maxBytes int64) (*Source, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("audio exceeds %d bytes", maxBytes)
	}
	return New(data, name, declaredType, origin), nil
}

func New(data []byte, name, declaredType string, origin Origin) *Source {
	return &Source{
		Name:     filepath.Base(name),
		MIMEType: resolveType(data, declaredType),
		Origin:   origin,
		Data:     data,
	}
}

func resolveType(data []byte, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}
