// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-accounts/internal/storage"
)

// UpdateProfile sets name and, when image is non-empty, a new profile image on accountID.
// actorID must own the account or be staff. Either everything is saved or nothing is.
func (s *Service) UpdateProfile(ctx context.Context, actorID, accountID int64, name string, image []byte) error {
	actor, err := s.store.FindByID(ctx, actorID)
	if err != nil {
		return ErrForbidden
	}
	if !actor.IsActive || (actor.ID != accountID && !actor.IsStaff) {
		s.recorder.Record("update_profile", "forbidden")
		return ErrForbidden
	}

	acct := actor
	if accountID != actor.ID {
		if acct, err = s.Account(ctx, accountID); err != nil {
			return err
		}
	}

	name, messages := checkName(name)
	if len(messages) > 0 {
		return invalid(messages...)
	}

	oldImage := acct.Image
	newImage := ""
	if len(image) > 0 {
		if s.images == nil {
			return invalid("Image uploads are not enabled.")
		}
		newImage, err = s.images.Save(ctx, acct.ID, image)
		switch {
		case errors.Is(err, storage.ErrInvalidImage):
			return invalid("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
		case errors.Is(err, storage.ErrImageTooLarge):
			return invalid("The image is too large.")
		case err != nil:
			return fmt.Errorf("failed to store image: %w", err)
		}
		acct.Image = newImage
	}
	acct.Name = name

	if err := s.store.Save(ctx, acct); err != nil {
		if newImage != "" {
			if delErr := s.images.Delete(ctx, newImage); delErr != nil {
				slog.WarnContext(ctx, "orphaned_profile_image", "ref", newImage, "error", delErr)
			}
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if newImage != "" && oldImage != "" {
		if err := s.images.Delete(ctx, oldImage); err != nil {
			slog.WarnContext(ctx, "old_profile_image_not_deleted", "ref", oldImage, "error", err)
		}
	}

	slog.InfoContext(ctx, "profile_updated", "account_id", acct.ID, "actor_id", actor.ID)
	s.recorder.Record("update_profile", "ok")
	return nil
}
