// Package file reads the snapshot document from disk and watches it for
// replacement.
package file

import (
	"context"
	"fmt"
	"os"

	"github.com/couchcryptid/ltv-stats-service/internal/domain"
)

// Source loads the snapshot JSON document from a path.
type Source struct {
	path string
}

// NewSource creates a Source reading path.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Load reads and decodes the whole document. A missing file, an unreadable
// file or malformed JSON is an error; nothing is partially returned.
func (s *Source) Load(ctx context.Context) (domain.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return domain.DecodeDataset(data)
}

// Path returns the file being read.
func (s *Source) Path() string { return s.path }
