package snapshot

import (
	"fmt"
	"io"
	"os"

	"github.com/delegate-rewards/referral-payout/internal/types"
)

// Source yields the raw snapshot log written by the external logger
type Source interface {
	Open() (io.ReadCloser, error)
	Name() string
}

type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot log %s: %w", types.ErrSourceUnavailable, s.path, err)
	}
	return f, nil
}

func (s *FileSource) Name() string {
	return s.path
}
