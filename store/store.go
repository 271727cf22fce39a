// Package store records tracker output to a sqlite database so track
// histories can be replayed and analysed after a run.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/swdee/go-botsort/reid"
	"github.com/swdee/go-botsort/tracker"
	_ "modernc.org/sqlite"
)

// ErrUnknownSession is returned when a session ID has no record
var ErrUnknownSession = errors.New("unknown session")

//go:embed schema.sql
var schemaSQL string

// pragmas applied to every connection
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Recorder writes per frame track observations grouped into sessions, one
// session per tracked stream
type Recorder struct {
	*sql.DB
}

// Session describes a recorded tracking run
type Session struct {
	ID         string
	Name       string
	Config     tracker.Config
	FrameCount int
	Ended      bool
}

// Observation is a single track as output on one frame
type Observation struct {
	FrameID     int
	TrackID     int
	Rect        tracker.Rect
	Score       float32
	Label       int
	DetectionID int64
	Activated   bool
	// Embedding is the smoothed appearance embedding, decoded from half
	// precision storage
	Embedding []float32
}

// Open opens or creates the database at path and applies the schema
func Open(path string) (*Recorder, error) {

	db, err := sql.Open("sqlite", path)

	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Recorder{db}, nil
}

// StartSession creates a new session and returns its ID
func (r *Recorder) StartSession(ctx context.Context, name string, cfg tracker.Config) (string, error) {

	cfgJSON, err := json.Marshal(cfg)

	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	id := uuid.New().String()

	_, err = r.ExecContext(ctx,
		`INSERT INTO sessions (session_id, name, config_json) VALUES (?, ?, ?)`,
		id, name, string(cfgJSON))

	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}

	return id, nil
}

// RecordFrame stores the tracks output for a frame in a single transaction
func (r *Recorder) RecordFrame(ctx context.Context, sessionID string, frameID int,
	tracks []*tracker.Track) error {

	tx, err := r.BeginTx(ctx, nil)

	if err != nil {
		return fmt.Errorf("failed to begin frame %d: %w", frameID, err)
	}

	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET frame_count = MAX(frame_count, ?) WHERE session_id = ?`,
		frameID, sessionID)

	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_observations (session_id, frame_id, track_id, x, y,
			width, height, score, label, detection_id, activated, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	defer stmt.Close()

	for _, t := range tracks {
		rect := t.GetRect()

		var emb []byte

		if feat := t.GetSmoothFeature(); len(feat) > 0 {
			emb = reid.EncodeFloat16(feat)
		}

		_, err := stmt.ExecContext(ctx, sessionID, frameID, t.GetTrackID(),
			rect.X(), rect.Y(), rect.Width(), rect.Height(), t.GetScore(),
			t.GetLabel(), t.GetDetectionID(), t.IsActivated(), emb)

		if err != nil {
			return fmt.Errorf("failed to insert track %d on frame %d: %w",
				t.GetTrackID(), frameID, err)
		}
	}

	return tx.Commit()
}

// EndSession marks the session as finished
func (r *Recorder) EndSession(ctx context.Context, sessionID string) error {

	res, err := r.ExecContext(ctx,
		`UPDATE sessions SET end_timestamp = UNIXEPOCH('subsec') WHERE session_id = ?`,
		sessionID)

	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	return nil
}

// GetSession returns the session record
func (r *Recorder) GetSession(ctx context.Context, sessionID string) (Session, error) {

	var (
		s       Session
		cfgJSON string
		end     sql.NullFloat64
	)

	err := r.QueryRowContext(ctx, `
		SELECT session_id, name, config_json, frame_count, end_timestamp
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.ID, &s.Name, &cfgJSON, &s.FrameCount, &end)

	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	if err != nil {
		return s, fmt.Errorf("failed to query session: %w", err)
	}

	if err := json.Unmarshal([]byte(cfgJSON), &s.Config); err != nil {
		return s, fmt.Errorf("failed to decode session config: %w", err)
	}

	s.Ended = end.Valid

	return s, nil
}

// TrackHistory returns every observation of a track in frame order
func (r *Recorder) TrackHistory(ctx context.Context, sessionID string, trackID int) ([]Observation, error) {
	return r.queryObservations(ctx, `
		SELECT frame_id, track_id, x, y, width, height, score, label,
			detection_id, activated, embedding
		FROM track_observations
		WHERE session_id = ? AND track_id = ?
		ORDER BY frame_id
	`, sessionID, trackID)
}

// FrameTracks returns the observations recorded for a frame in track ID
// order
func (r *Recorder) FrameTracks(ctx context.Context, sessionID string, frameID int) ([]Observation, error) {
	return r.queryObservations(ctx, `
		SELECT frame_id, track_id, x, y, width, height, score, label,
			detection_id, activated, embedding
		FROM track_observations
		WHERE session_id = ? AND frame_id = ?
		ORDER BY track_id
	`, sessionID, frameID)
}

func (r *Recorder) queryObservations(ctx context.Context, query string, args ...any) ([]Observation, error) {

	rows, err := r.QueryContext(ctx, query, args...)

	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}

	defer rows.Close()

	var out []Observation

	for rows.Next() {
		var (
			o          Observation
			x, y, w, h float32
			emb        []byte
		)

		err := rows.Scan(&o.FrameID, &o.TrackID, &x, &y, &w, &h, &o.Score,
			&o.Label, &o.DetectionID, &o.Activated, &emb)

		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}

		o.Rect = tracker.NewRect(x, y, w, h)

		if len(emb) > 0 {
			o.Embedding = reid.DecodeFloat16(emb)
		}

		out = append(out, o)
	}

	return out, rows.Err()
}
