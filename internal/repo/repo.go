package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"castline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const campaignColumns = `id, user_id, name, message, media_url, groups_json, schedule_json, config_json,
total_sent, total_failed, last_run_at, next_run_at, status, created_at, updated_at`

func (r Repo) InsertCampaign(ctx context.Context, c domain.Campaign) error {
	groups, err := json.Marshal(c.Groups)
	if err != nil {
		return err
	}
	schedule, err := json.Marshal(c.Schedule)
	if err != nil {
		return err
	}
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO campaigns(`+campaignColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, c.Name, c.Message, nullable(c.MediaURL), string(groups), string(schedule), string(cfg),
		c.Stats.TotalSent, c.Stats.TotalFailed, nullable(c.Stats.LastRunAt), nullable(c.Stats.NextRunAt),
		c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=?`, id)
	return scanCampaign(row.Scan)
}

func (r Repo) ListCampaigns(ctx context.Context, userID string) ([]domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	var args []any
	if userID != "" {
		query += ` WHERE user_id=?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// PendingCampaigns returns active campaigns whose next run is due at or
// before now. RFC3339 UTC strings order lexically, so the comparison happens
// in SQL.
func (r Repo) PendingCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	rows, err := r.DB.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns
WHERE status=? AND next_run_at IS NOT NULL AND next_run_at!='' AND next_run_at<=?
ORDER BY next_run_at ASC, id ASC`, domain.CampaignActive, nowStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ApplyRun folds one batch outcome into a campaign as a single
// read-modify-write: counters increment in SQL so concurrent writers cannot
// lose updates.
func (r Repo) ApplyRun(ctx context.Context, id string, run domain.RunResult) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns
SET total_sent=total_sent+?, total_failed=total_failed+?, last_run_at=?, next_run_at=?, status=?, updated_at=?
WHERE id=?`,
		run.Sent, run.Failed, nullable(run.LastRunAt), nullable(run.NextRunAt), run.Status, run.LastRunAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateCampaign(ctx context.Context, c domain.Campaign) error {
	groups, err := json.Marshal(c.Groups)
	if err != nil {
		return err
	}
	schedule, err := json.Marshal(c.Schedule)
	if err != nil {
		return err
	}
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns
SET name=?, message=?, media_url=?, groups_json=?, schedule_json=?, config_json=?, next_run_at=?, status=?, updated_at=?
WHERE id=?`,
		c.Name, c.Message, nullable(c.MediaURL), string(groups), string(schedule), string(cfg),
		nullable(c.Stats.NextRunAt), c.Status, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetCampaignStatus(ctx context.Context, id, status, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TriggerCampaign makes a campaign due immediately.
func (r Repo) TriggerCampaign(ctx context.Context, id string, now time.Time) error {
	nowStr := now.UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET next_run_at=?, status=?, updated_at=? WHERE id=?`,
		nowStr, domain.CampaignActive, nowStr, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCampaign(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCampaign(scan func(dest ...any) error) (domain.Campaign, error) {
	var c domain.Campaign
	var mediaURL, lastRunAt, nextRunAt sql.NullString
	var groupsJSON, scheduleJSON, configJSON string
	err := scan(&c.ID, &c.UserID, &c.Name, &c.Message, &mediaURL, &groupsJSON, &scheduleJSON, &configJSON,
		&c.Stats.TotalSent, &c.Stats.TotalFailed, &lastRunAt, &nextRunAt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if mediaURL.Valid {
		c.MediaURL = mediaURL.String
	}
	if lastRunAt.Valid {
		c.Stats.LastRunAt = lastRunAt.String
	}
	if nextRunAt.Valid {
		c.Stats.NextRunAt = nextRunAt.String
	}
	if err := json.Unmarshal([]byte(groupsJSON), &c.Groups); err != nil {
		return c, fmt.Errorf("campaign %s groups: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(scheduleJSON), &c.Schedule); err != nil {
		return c, fmt.Errorf("campaign %s schedule: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(configJSON), &c.Config); err != nil {
		return c, fmt.Errorf("campaign %s config: %w", c.ID, err)
	}
	return c, nil
}

// LatestEvents returns the newest events, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, userID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, ts, type, COALESCE(user_id,''), entity_kind, COALESCE(entity_id,''), actor_id, payload_json FROM events`
	var conds []string
	var args []any
	if userID != "" {
		conds = append(conds, "user_id=?")
		args = append(args, userID)
	}
	if evtType != "" {
		conds = append(conds, "type=?")
		args = append(args, evtType)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
