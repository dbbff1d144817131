// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
)

const accountColumns = `id, email, name, password_hash, image, is_active, is_staff,
	challenge_purpose, challenge_token, challenge_code, challenge_created_at,
	created_at, updated_at`

// accountRow mirrors the accounts table including its nullable columns.
type accountRow struct { //nolint:govet // fieldalignment: readability over optimization
	ID                 int64          `db:"id"`
	Email              string         `db:"email"`
	Name               string         `db:"name"`
	PasswordHash       string         `db:"password_hash"`
	Image              sql.NullString `db:"image"`
	IsActive           bool           `db:"is_active"`
	IsStaff            bool           `db:"is_staff"`
	ChallengePurpose   sql.NullString `db:"challenge_purpose"`
	ChallengeToken     sql.NullString `db:"challenge_token"`
	ChallengeCode      sql.NullString `db:"challenge_code"`
	ChallengeCreatedAt sql.NullTime   `db:"challenge_created_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (row *accountRow) toModel() *models.Account {
	acct := &models.Account{
		ID:           row.ID,
		Email:        row.Email,
		Name:         row.Name,
		PasswordHash: row.PasswordHash,
		Image:        row.Image.String,
		IsActive:     row.IsActive,
		IsStaff:      row.IsStaff,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.ChallengeToken.Valid {
		acct.Challenge = &models.Challenge{
			Purpose:   models.Purpose(row.ChallengePurpose.String),
			Token:     row.ChallengeToken.String,
			Code:      row.ChallengeCode.String,
			CreatedAt: row.ChallengeCreatedAt.Time.UTC(),
		}
	}
	return acct
}

// challengeArgs returns the nullable challenge column values for acct.
func challengeArgs(acct *models.Account) (purpose, token, code sql.NullString, createdAt sql.NullTime) {
	if ch := acct.Challenge; ch != nil {
		purpose = sql.NullString{String: string(ch.Purpose), Valid: true}
		token = sql.NullString{String: ch.Token, Valid: true}
		code = sql.NullString{String: ch.Code, Valid: true}
		createdAt = sql.NullTime{Time: ch.CreatedAt.UTC(), Valid: true}
	}
	return purpose, token, code, createdAt
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repository) getAccount(ctx context.Context, where string, arg any) (*models.Account, error) {
	var row accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		return nil, wrapError(err)
	}
	return row.toModel(), nil
}

// FindByID retrieves an account by ID.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.getAccount(ctx, `id = ?`, id)
}

// FindByEmail retrieves an account by its normalized email address.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getAccount(ctx, `email = ?`, models.NormalizeEmail(email))
}

// FindByToken retrieves the account holding the given challenge token.
// Expiry is not checked here.
func (r *Repository) FindByToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return r.getAccount(ctx, `challenge_token = ?`, token)
}

// Create inserts a new account and sets its ID and timestamps.
func (r *Repository) Create(ctx context.Context, acct *models.Account) error {
	acct.Email = models.NormalizeEmail(acct.Email)
	now := time.Now().UTC()
	purpose, token, code, createdAt := challengeArgs(acct)

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (email, name, password_hash, image, is_active, is_staff,
			challenge_purpose, challenge_token, challenge_code, challenge_created_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.Email, acct.Name, acct.PasswordHash, nullString(acct.Image), acct.IsActive, acct.IsStaff,
		purpose, token, code, createdAt, now, now)
	if err != nil {
		return wrapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	acct.ID = id
	acct.CreatedAt = now
	acct.UpdatedAt = now
	return nil
}

// Save writes every mutable column of an existing account.
func (r *Repository) Save(ctx context.Context, acct *models.Account) error {
	now := time.Now().UTC()
	purpose, token, code, createdAt := challengeArgs(acct)

	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, password_hash = ?, image = ?, is_active = ?, is_staff = ?,
			challenge_purpose = ?, challenge_token = ?, challenge_code = ?, challenge_created_at = ?,
			updated_at = ?
		WHERE id = ?`,
		acct.Name, acct.PasswordHash, nullString(acct.Image), acct.IsActive, acct.IsStaff,
		purpose, token, code, createdAt, now, acct.ID)
	if err != nil {
		return wrapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	acct.UpdatedAt = now
	return nil
}

// GetOrCreate returns the account for email, inserting defaults if none exists.
// A concurrent insert of the same email is resolved by re-reading the winner.
func (r *Repository) GetOrCreate(ctx context.Context, email string, defaults *models.Account) (*models.Account, bool, error) {
	email = models.NormalizeEmail(email)

	acct, err := r.FindByEmail(ctx, email)
	if err == nil {
		return acct, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	created := *defaults
	created.Email = email
	if err := r.Create(ctx, &created); err != nil {
		if errors.Is(err, ErrDuplicate) {
			acct, findErr := r.FindByEmail(ctx, email)
			if findErr == nil {
				return acct, false, nil
			}
		}
		return nil, false, err
	}
	return &created, true, nil
}

// ClearExpiredChallenges drops every challenge created before the cutoff.
func (r *Repository) ClearExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET challenge_purpose = NULL, challenge_token = NULL,
			challenge_code = NULL, challenge_created_at = NULL
		WHERE challenge_created_at IS NOT NULL AND challenge_created_at < ?`,
		before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountAccounts returns the total number of accounts
func (r *Repository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM accounts`); err != nil {
		return 0, err
	}
	return count, nil
}
