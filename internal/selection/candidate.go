package selection

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Candidate is an image chosen by the operator. It is immutable once built.
type Candidate struct {
	Name     string
	MIMEType string
	Ext      string
	Size     int64

	open func() (io.ReadCloser, error)
}

// FromPath builds a candidate from a local file. The MIME type is sniffed from
// the file content rather than trusted from the extension.
func FromPath(path string) (Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Candidate{}, fmt.Errorf("%s is a directory", path)
	}

	mimeType := ""
	if detected, err := mimetype.DetectFile(path); err == nil {
		mimeType = detected.String()
	}

	return Candidate{
		Name:     filepath.Base(path),
		MIMEType: normalizeMIME(mimeType),
		Ext:      extensionOf(path),
		Size:     info.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FromBytes builds a candidate from in-memory content. An empty mimeType is
// left empty, mirroring platforms that expose no type for formats like HEIC.
func FromBytes(name, mimeType string, data []byte) Candidate {
	buf := append([]byte(nil), data...)
	return Candidate{
		Name:     name,
		MIMEType: normalizeMIME(mimeType),
		Ext:      extensionOf(name),
		Size:     int64(len(buf)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		},
	}
}

// Open returns a fresh reader over the candidate's bytes.
func (c Candidate) Open() (io.ReadCloser, error) {
	if c.open == nil {
		return nil, fmt.Errorf("candidate %q has no content", c.Name)
	}
	return c.open()
}

// FileName implements extractor.Part.
func (c Candidate) FileName() string { return c.Name }

// ContentType implements extractor.Part.
func (c Candidate) ContentType() string {
	if c.MIMEType == "" {
		return "application/octet-stream"
	}
	return c.MIMEType
}

func extensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func normalizeMIME(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return value
}
