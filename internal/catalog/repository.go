package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	UpsertVideo(ctx context.Context, v *Video) error
	GetVideo(ctx context.Context, filename string) (*Video, error)
	ListVideos(ctx context.Context) ([]*Video, error)
	DeleteVideo(ctx context.Context, filename string) (bool, error)
	CountVideos(ctx context.Context) (int, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const videoColumns = `filename, emotion, outcome, size, content_type,
	frames_read, frames_sampled, frames_classified, created_at`

// UpsertVideo stores v, replacing any record with the same filename. A
// replaced record moves to the end of the upload order.
func (r *SQLiteRepository) UpsertVideo(ctx context.Context, v *Video) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM videos))
		ON CONFLICT(filename) DO UPDATE SET
			emotion = excluded.emotion,
			outcome = excluded.outcome,
			size = excluded.size,
			content_type = excluded.content_type,
			frames_read = excluded.frames_read,
			frames_sampled = excluded.frames_sampled,
			frames_classified = excluded.frames_classified,
			created_at = excluded.created_at,
			seq = excluded.seq
	`, v.Filename, v.Emotion, v.Outcome, v.Size, v.ContentType,
		v.FramesRead, v.FramesSampled, v.FramesClassified, v.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM video_emotions WHERE filename = ?", v.Filename); err != nil {
		return err
	}
	for label, count := range v.Emotions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO video_emotions (filename, emotion, count) VALUES (?, ?, ?)",
			v.Filename, label, count,
		); err != nil {
			return fmt.Errorf("insert emotion count: %w", err)
		}
	}

	return tx.Commit()
}

// GetVideo returns nil, nil when no record exists.
func (r *SQLiteRepository) GetVideo(ctx context.Context, filename string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE filename = ?`, filename)

	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	counts, err := r.emotionCounts(ctx, filename)
	if err != nil {
		return nil, err
	}
	v.Emotions = counts[filename]
	return v, nil
}

// ListVideos returns records in upload order.
func (r *SQLiteRepository) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts, err := r.emotionCounts(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, v := range videos {
		v.Emotions = counts[v.Filename]
	}
	return videos, nil
}

// DeleteVideo reports whether a record was removed.
func (r *SQLiteRepository) DeleteVideo(ctx context.Context, filename string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE filename = ?", filename)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) CountVideos(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos").Scan(&count)
	return count, err
}

// emotionCounts loads the per-label counts for one filename, or for every
// video when filename is empty.
func (r *SQLiteRepository) emotionCounts(ctx context.Context, filename string) (map[string]map[string]int, error) {
	query := "SELECT filename, emotion, count FROM video_emotions"
	var args []any
	if filename != "" {
		query += " WHERE filename = ?"
		args = append(args, filename)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var name, label string
		var count int
		if err := rows.Scan(&name, &label, &count); err != nil {
			return nil, err
		}
		if out[name] == nil {
			out[name] = make(map[string]int)
		}
		out[name][label] = count
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var v Video
	var createdAt string
	err := row.Scan(&v.Filename, &v.Emotion, &v.Outcome, &v.Size, &v.ContentType,
		&v.FramesRead, &v.FramesSampled, &v.FramesClassified, &createdAt)
	if err != nil {
		return nil, err
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &v, nil
}
