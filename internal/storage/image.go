// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package storage keeps profile images on the local filesystem or in S3.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	_ "image/png"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

var (
	ErrInvalidImage  = errors.New("upload a valid image")
	ErrImageTooLarge = errors.New("image is too large")
	ErrInvalidRef    = errors.New("invalid image reference")
)

// DefaultMaxSize applies when no limit is configured.
const DefaultMaxSize int64 = 2 << 20

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
}

var extensions = map[string]string{
	"png":  ".png",
	"jpeg": ".jpg",
	"gif":  ".gif",
}

// Image describes a validated upload.
type Image struct {
	Format      string
	ContentType string
	Extension   string
	Width       int
	Height      int
}

// DetectImage checks that payload fully decodes as PNG, JPEG or GIF and is at most maxSize bytes.
func DetectImage(payload []byte, maxSize int64) (*Image, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if int64(len(payload)) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, len(payload), maxSize)
	}
	if len(payload) == 0 {
		return nil, ErrInvalidImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	ct, ok := contentTypes[format]
	if !ok || cfg.Width == 0 || cfg.Height == 0 {
		return nil, ErrInvalidImage
	}
	// The header alone says nothing about the pixel data.
	if _, _, err := image.Decode(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	return &Image{
		Format:      format,
		ContentType: ct,
		Extension:   extensions[format],
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// objectKey returns a fresh key for an account's image.
func objectKey(accountID int64, ext string) string {
	return path.Join("avatars", fmt.Sprintf("%d", accountID), uuid.NewString()+ext)
}

// validRef rejects references that could escape the storage root.
func validRef(ref string) bool {
	return ref != "" && filepath.IsLocal(ref) && path.Clean(ref) == ref
}
