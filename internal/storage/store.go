// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package storage

import (
	"context"
	"fmt"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
)

// Store saves and removes profile images. Save returns the reference kept on the account.
type Store interface {
	Save(ctx context.Context, accountID int64, payload []byte) (string, error)
	Delete(ctx context.Context, ref string) error
	URL(ref string) string
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.StorageLocal, "":
		fs, err := NewFileStore(cfg.Dir, cfg.URLPrefix, cfg.MaxImageSize)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case config.StorageS3:
		s3s, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
