// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/store"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

type videoRepo struct{ q querier }

func (r *videoRepo) Get(ctx context.Context, id string) (*media.Video, error) {
	var (
		v                    media.Video
		status, res          string
		createdAt, updatedAt string
	)
	err := r.q.QueryRowContext(ctx, `
	SELECT id, raw_path, master_path, status, resolution, error, created_at, updated_at
	FROM videos WHERE id = ?`, id).
		Scan(&v.ID, &v.RawPath, &v.MasterPath, &status, &res, &v.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, media.ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	v.Status = media.VideoStatus(status)
	v.Resolution = media.Resolution(res)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)

	if v.Streams, err = (&streamRepo{q: r.q}).ListByVideo(ctx, id); err != nil {
		return nil, err
	}
	if v.Upscales, err = (&upscaleRepo{q: r.q}).ListByVideo(ctx, id); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *videoRepo) Add(ctx context.Context, v *media.Video) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO videos (id, raw_path, master_path, status, resolution, error, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.RawPath, v.MasterPath, string(v.Status), string(v.Resolution), v.Error,
		formatTime(v.CreatedAt), formatTime(v.UpdatedAt))
	if err != nil {
		return fmt.Errorf("add video: %w", err)
	}
	return nil
}

func (r *videoRepo) Update(ctx context.Context, v *media.Video) error {
	v.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
	UPDATE videos SET master_path = ?, status = ?, resolution = ?, error = ?, updated_at = ?
	WHERE id = ?`,
		v.MasterPath, string(v.Status), string(v.Resolution), v.Error, formatTime(v.UpdatedAt), v.ID)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return expectOne(res, media.ErrVideoNotFound)
}

type streamRepo struct{ q querier }

const streamColumns = `id, video_id, resolution, playlist_path, aes_key, aes_iv, width, height, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (*media.VideoStream, error) {
	var (
		s         media.VideoStream
		res       string
		createdAt string
	)
	if err := row.Scan(&s.ID, &s.VideoID, &res, &s.PlaylistPath, &s.Key, &s.IV, &s.Width, &s.Height, &createdAt); err != nil {
		return nil, err
	}
	s.Resolution = media.Resolution(res)
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

func (r *streamRepo) Get(ctx context.Context, id string) (*media.VideoStream, error) {
	s, err := scanStream(r.q.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM video_streams WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, media.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}
	return s, nil
}

func (r *streamRepo) Add(ctx context.Context, s *media.VideoStream) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO video_streams (`+streamColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.VideoID, string(s.Resolution), s.PlaylistPath, s.Key, s.IV, s.Width, s.Height, formatTime(s.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s", store.ErrDuplicateStream, s.VideoID, s.Resolution)
	}
	if err != nil {
		return fmt.Errorf("add stream: %w", err)
	}
	return nil
}

func (r *streamRepo) ListByVideo(ctx context.Context, videoID string) ([]*media.VideoStream, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+streamColumns+` FROM video_streams WHERE video_id = ? ORDER BY rowid`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*media.VideoStream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type upscaleRepo struct{ q querier }

const upscaleColumns = `id, video_id, model_id, status, output_path, stream_id, error, created_at, updated_at`

func scanUpscale(row rowScanner) (*media.VideoUpscale, error) {
	var (
		u                    media.VideoUpscale
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&u.ID, &u.VideoID, &u.ModelID, &status, &u.OutputPath, &u.StreamID, &u.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Status = media.UpscaleStatus(status)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func (r *upscaleRepo) Get(ctx context.Context, id string) (*media.VideoUpscale, error) {
	u, err := scanUpscale(r.q.QueryRowContext(ctx, `SELECT `+upscaleColumns+` FROM video_upscales WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, media.ErrUpscaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upscale: %w", err)
	}
	return u, nil
}

func (r *upscaleRepo) Add(ctx context.Context, u *media.VideoUpscale) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO video_upscales (`+upscaleColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.VideoID, u.ModelID, string(u.Status), u.OutputPath, u.StreamID, u.Error,
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("add upscale: %w", err)
	}
	return nil
}

func (r *upscaleRepo) Update(ctx context.Context, u *media.VideoUpscale) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
	UPDATE video_upscales SET status = ?, output_path = ?, stream_id = ?, error = ?, updated_at = ?
	WHERE id = ?`,
		string(u.Status), u.OutputPath, u.StreamID, u.Error, formatTime(u.UpdatedAt), u.ID)
	if err != nil {
		return fmt.Errorf("update upscale: %w", err)
	}
	return expectOne(res, media.ErrUpscaleNotFound)
}

func (r *upscaleRepo) ListByVideo(ctx context.Context, videoID string) ([]*media.VideoUpscale, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+upscaleColumns+` FROM video_upscales WHERE video_id = ? ORDER BY rowid`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list upscales: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*media.VideoUpscale
	for rows.Next() {
		u, err := scanUpscale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upscale: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type modelRepo struct{ q querier }

func (r *modelRepo) Get(ctx context.Context, id string) (*media.OnnxModel, error) {
	var m media.OnnxModel
	err := r.q.QueryRowContext(ctx, `SELECT id, path, scale, element_type FROM onnx_models WHERE id = ?`, id).
		Scan(&m.ID, &m.Path, &m.Scale, &m.ElementType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, media.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return &m, nil
}

func (r *modelRepo) List(ctx context.Context) ([]media.OnnxModel, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, path, scale, element_type FROM onnx_models ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []media.OnnxModel
	for rows.Next() {
		var m media.OnnxModel
		if err := rows.Scan(&m.ID, &m.Path, &m.Scale, &m.ElementType); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *modelRepo) Upsert(ctx context.Context, m media.OnnxModel) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO onnx_models (id, path, scale, element_type)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET path = excluded.path, scale = excluded.scale, element_type = excluded.element_type`,
		m.ID, m.Path, m.Scale, m.ElementType)
	if err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}
	return nil
}

func (r *modelRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM onnx_models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	return expectOne(res, media.ErrModelNotFound)
}
