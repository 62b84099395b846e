package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/dbx"
	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Toggle(ctx context.Context, subscriberID, channelID string) (bool, error) {
	var subscribed bool

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2`,
			subscriberID, channelID)
		if err != nil {
			return err
		}
		err = dbx.RequireAffected(res)
		if err == nil {
			subscribed = false
			return nil
		}
		if !errors.Is(err, dbx.ErrNoRowsAffected) {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subscriptions (subscriber_id, channel_id) VALUES ($1, $2)`,
			subscriberID, channelID); err != nil {
			return err
		}
		subscribed = true
		return nil
	})
	if err != nil {
		return false, mapError(err)
	}
	return subscribed, nil
}

func (r *PostgresRepository) CountSubscribers(ctx context.Context, channelID string) (int64, error) {
	return r.count(ctx, `SELECT count(*) FROM subscriptions WHERE channel_id = $1`, channelID)
}

func (r *PostgresRepository) CountSubscribedTo(ctx context.Context, subscriberID string) (int64, error) {
	return r.count(ctx, `SELECT count(*) FROM subscriptions WHERE subscriber_id = $1`, subscriberID)
}

func (r *PostgresRepository) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2)`,
		subscriberID, channelID).Scan(&exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

func (r *PostgresRepository) count(ctx context.Context, query string, id string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", "22P02":
			return common.ErrorNotFound
		case "23505":
			return common.ErrConflict
		}
	}
	return fmt.Errorf("db error: %w", err)
}
