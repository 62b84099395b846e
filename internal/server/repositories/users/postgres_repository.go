package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/dbx"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes we translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url,
		 password_hash, refresh_token, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (username, email, full_name, avatar_url, cover_image_url, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.FullName, user.AvatarURL, user.CoverImageURL, user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, mapError(err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, identifier string) (*models.User, error) {
	if IsEmailLogin(identifier) {
		return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, identifier)
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, identifier)
}

func (r *PostgresRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdateAccount(ctx context.Context, id, fullName, email string) (*models.User, error) {
	return r.getOne(ctx,
		`UPDATE users SET full_name = $2, email = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, fullName, email)
}

func (r *PostgresRepository) UpdateAvatar(ctx context.Context, id, url string) (*models.User, error) {
	return r.getOne(ctx,
		`UPDATE users SET avatar_url = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, url)
}

func (r *PostgresRepository) UpdateCoverImage(ctx context.Context, id, url string) (*models.User, error) {
	return r.getOne(ctx,
		`UPDATE users SET cover_image_url = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, url)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.execOne(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.execOne(ctx, `UPDATE users SET refresh_token = $2 WHERE id = $1`, id, token)
}

func (r *PostgresRepository) GetRefreshToken(ctx context.Context, id string) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `SELECT refresh_token FROM users WHERE id = $1`, id).Scan(&token)
	if err != nil {
		return "", mapError(err)
	}
	return token, nil
}

func (r *PostgresRepository) ClearRefreshToken(ctx context.Context, id string) error {
	return r.execOne(ctx, `UPDATE users SET refresh_token = '' WHERE id = $1`, id)
}

// SwapRefreshToken relies on the row lock taken by UPDATE: of two concurrent
// swaps with the same expected value, the second re-evaluates the WHERE
// clause after the first commits and matches nothing.
func (r *PostgresRepository) SwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = $1 WHERE id = $2 AND refresh_token = $3`,
		next, id, expected)
	if err != nil {
		return false, mapError(err)
	}
	if err := dbx.RequireAffected(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) WatchHistory(ctx context.Context, id string) ([]models.WatchHistoryEntry, error) {
	query :=
		`SELECT v.id, v.title, v.video_url, v.thumbnail_url, v.duration,
		        o.id, o.username, o.avatar_url, h.watched_at
		 FROM watch_history h
		 JOIN videos v ON v.id = h.video_id
		 JOIN users o ON o.id = v.owner_id
		 WHERE h.user_id = $1
		 ORDER BY h.watched_at DESC, h.id DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	entries := make([]models.WatchHistoryEntry, 0)
	for rows.Next() {
		var e models.WatchHistoryEntry
		if err := rows.Scan(&e.VideoID, &e.Title, &e.VideoURL, &e.ThumbnailURL, &e.Duration,
			&e.OwnerID, &e.OwnerUsername, &e.OwnerAvatarURL, &e.WatchedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}

// AppendWatchHistory reports ErrorNotFound when either the user or the video
// does not exist.
func (r *PostgresRepository) AppendWatchHistory(ctx context.Context, id, videoID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO watch_history (user_id, video_id) VALUES ($1, $2)`, id, videoID)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.AvatarURL, &u.CoverImageURL,
		&u.PasswordHash, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if err := dbx.RequireAffected(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return common.ErrConflict
		case pgForeignKeyViolation, pgInvalidText:
			// a malformed uuid or a dangling reference names nothing that exists
			return common.ErrorNotFound
		}
	}
	return fmt.Errorf("db error: %w", err)
}
