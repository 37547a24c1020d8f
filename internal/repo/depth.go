package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"castline/internal/domain"
	"castline/internal/events"
)

// BaseDepth returns a user's configured base depth level.
func (r Repo) BaseDepth(ctx context.Context, userID string) (int, error) {
	var level int
	err := r.DB.QueryRowContext(ctx, `SELECT base_depth FROM users WHERE id=?`, userID).Scan(&level)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return level, err
}

// EnsureUser inserts the user with the given base depth if missing.
func (r Repo) EnsureUser(ctx context.Context, userID string, baseDepth int, now time.Time) error {
	if userID == "" {
		return errors.New("user id required")
	}
	ts := now.UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id, base_depth, created_at, updated_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO NOTHING`, userID, baseDepth, ts, ts)
	return err
}

// SetBaseDepth upserts a user's base depth level.
func (r Repo) SetBaseDepth(ctx context.Context, userID string, level int, now time.Time) error {
	if userID == "" {
		return errors.New("user id required")
	}
	ts := now.UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id, base_depth, created_at, updated_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET base_depth=excluded.base_depth, updated_at=excluded.updated_at`,
		userID, level, ts, ts)
	return err
}

func (r Repo) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id, base_depth, created_at, updated_at FROM users WHERE id=?`, userID).
		Scan(&u.ID, &u.BaseDepth, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// ActiveBoosts returns boosts that have not yet expired. Expired rows stay
// in place; expiry means exclusion, not deletion.
func (r Repo) ActiveBoosts(ctx context.Context, userID string, now time.Time) ([]domain.DepthBoost, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	rows, err := r.DB.QueryContext(ctx, `SELECT id, user_id, depth_delta, expires_at, COALESCE(granted_by,''), created_at
FROM depth_boosts WHERE user_id=? AND expires_at>? ORDER BY created_at ASC, id ASC`, userID, nowStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBoosts(rows)
}

func (r Repo) ListBoosts(ctx context.Context, userID string) ([]domain.DepthBoost, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, user_id, depth_delta, expires_at, COALESCE(granted_by,''), created_at
FROM depth_boosts WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBoosts(rows)
}

func (r Repo) InsertBoost(ctx context.Context, b domain.DepthBoost) error {
	if b.UserID == "" {
		return errors.New("user id required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO depth_boosts(id, user_id, depth_delta, expires_at, granted_by, created_at)
VALUES (?,?,?,?,?,?)`,
		b.ID, b.UserID, b.DepthDelta, b.ExpiresAt, nullable(b.GrantedBy), b.CreatedAt)
	return err
}

// LogDepthEvent records resolver telemetry in the event log. Best-effort by
// contract: callers may ignore the error.
func (r Repo) LogDepthEvent(ctx context.Context, userID, kind string, payload map[string]any) error {
	w := events.Writer{DB: r.DB}
	return w.Append(ctx, nil, kind, userID, "depth", userID, "system", payload)
}

func scanBoosts(rows *sql.Rows) ([]domain.DepthBoost, error) {
	var res []domain.DepthBoost
	for rows.Next() {
		var b domain.DepthBoost
		if err := rows.Scan(&b.ID, &b.UserID, &b.DepthDelta, &b.ExpiresAt, &b.GrantedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
