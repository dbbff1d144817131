// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps images below a local directory.
type FileStore struct {
	dir       string
	urlPrefix string
	maxSize   int64
}

// NewFileStore creates dir if needed.
func NewFileStore(dir, urlPrefix string, maxSize int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &FileStore{
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		maxSize:   maxSize,
	}, nil
}

// Dir returns the root directory, used to serve the files.
func (s *FileStore) Dir() string {
	return s.dir
}

// URLPrefix returns the path prefix images are served under.
func (s *FileStore) URLPrefix() string {
	return s.urlPrefix
}

func (s *FileStore) Save(_ context.Context, accountID int64, payload []byte) (string, error) {
	img, err := DetectImage(payload, s.maxSize)
	if err != nil {
		return "", err
	}

	ref := objectKey(accountID, img.Extension)
	dst := filepath.Join(s.dir, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(dst, payload, 0o640); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return ref, nil
}

// Delete removes the image. A missing file is not an error.
func (s *FileStore) Delete(_ context.Context, ref string) error {
	if !validRef(ref) {
		return ErrInvalidRef
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(ref)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

func (s *FileStore) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return s.urlPrefix + "/" + ref
}
