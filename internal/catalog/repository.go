package catalog

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	UpsertVideo(ctx context.Context, video *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	GetVideoByPath(ctx context.Context, path string) (*Video, error)
	ListVideos(ctx context.Context, limit int) ([]*Video, error)
	DeleteVideo(ctx context.Context, id string) error

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	FinishJob(ctx context.Context, job *Job) error

	InsertAction(ctx context.Context, message string, at time.Time) error
	ListActions(ctx context.Context, limit int) ([]*ActionRecord, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const videoColumns = `id, path, display_name, fingerprint, fps, frame_count, width, height, open_count, created_at, last_opened_at`

// UpsertVideo inserts the video or, when its path is known, refreshes its
// probe data and bumps the open count. video.ID is set to the stored id.
func (r *SQLiteRepository) UpsertVideo(ctx context.Context, v *Video) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			display_name = excluded.display_name,
			fingerprint = excluded.fingerprint,
			fps = excluded.fps,
			frame_count = excluded.frame_count,
			width = excluded.width,
			height = excluded.height,
			open_count = videos.open_count + 1,
			last_opened_at = excluded.last_opened_at
		RETURNING id, open_count
	`, v.ID, v.Path, v.DisplayName, nullString(v.Fingerprint), v.FPS, v.FrameCount, v.Width, v.Height,
		v.CreatedAt.UTC().Format(time.RFC3339), v.LastOpenedAt.UTC().Format(timeLayout))
	return row.Scan(&v.ID, &v.OpenCount)
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	return r.scanVideo(row)
}

func (r *SQLiteRepository) GetVideoByPath(ctx context.Context, path string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE path = ?`, path)
	return r.scanVideo(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scanVideo(row *sql.Row) (*Video, error) {
	v, err := scanVideoRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func scanVideoRow(row scanner) (*Video, error) {
	var v Video
	var fingerprint sql.NullString
	var createdAt, lastOpenedAt string

	err := row.Scan(&v.ID, &v.Path, &v.DisplayName, &fingerprint, &v.FPS, &v.FrameCount,
		&v.Width, &v.Height, &v.OpenCount, &createdAt, &lastOpenedAt)
	if err != nil {
		return nil, err
	}
	v.Fingerprint = fingerprint.String
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	v.LastOpenedAt, _ = time.Parse(time.RFC3339Nano, lastOpenedAt)
	return &v, nil
}

// ListVideos returns videos, most recently opened first.
func (r *SQLiteRepository) ListVideos(ctx context.Context, limit int) ([]*Video, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+videoColumns+` FROM videos ORDER BY last_opened_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideoRow(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (r *SQLiteRepository) DeleteVideo(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	return err
}

const jobColumns = `id, type, status, video_path, dir, total, exported, skipped, partial, unresolved, failed, error, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, nullString(j.VideoPath), j.Dir, j.Total,
		j.Exported, j.Skipped, j.Partial, j.Unresolved, j.Failed, nullString(j.Error),
		j.CreatedAt.UTC().Format(timeLayout), j.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func scanJobRow(row scanner) (*Job, error) {
	var j Job
	var videoPath, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Type, &j.Status, &videoPath, &j.Dir, &j.Total,
		&j.Exported, &j.Skipped, &j.Partial, &j.Unresolved, &j.Failed, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.VideoPath = videoPath.String
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), time.Now().UTC().Format(timeLayout), id)
	return err
}

// FinishJob stores the final status and per-clip counts of j.
func (r *SQLiteRepository) FinishJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, total = ?, exported = ?, skipped = ?, partial = ?,
			unresolved = ?, failed = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, j.Status, j.Total, j.Exported, j.Skipped, j.Partial, j.Unresolved, j.Failed,
		nullString(j.Error), j.UpdatedAt.UTC().Format(timeLayout), j.ID)
	return err
}

func (r *SQLiteRepository) InsertAction(ctx context.Context, message string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO actions (message, recorded_at) VALUES (?, ?)
	`, message, at.UTC().Format(timeLayout))
	return err
}

// ListActions returns the latest limit actions in chronological order.
func (r *SQLiteRepository) ListActions(ctx context.Context, limit int) ([]*ActionRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message, recorded_at FROM (
			SELECT id, message, recorded_at FROM actions ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*ActionRecord
	for rows.Next() {
		var a ActionRecord
		var recordedAt string
		if err := rows.Scan(&a.ID, &a.Message, &recordedAt); err != nil {
			return nil, err
		}
		a.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
