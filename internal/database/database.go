package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nufang/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Play is one recorded start of a track
type Play struct {
	ID       int64     `json:"id"`
	TrackID  string    `json:"trackId"`
	Title    string    `json:"title"`
	Album    string    `json:"album"`
	PlayedAt time.Time `json:"playedAt"`
}

// PlayCount aggregates plays of a single track
type PlayCount struct {
	TrackID string `json:"trackId"`
	Title   string `json:"title"`
	Album   string `json:"album"`
	Count   int    `json:"count"`
}

// QueueState is the persisted playlist of the last session
type QueueState struct {
	Tracks       []models.Track `json:"tracks"`
	CurrentIndex int            `json:"currentIndex"`
	Mode         string         `json:"mode"`
	Volume       float64        `json:"volume"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Database wraps a *sql.DB holding play history and the saved queue. It is
// safe for concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	insertPlayStmt  *sql.Stmt
	recentPlaysStmt *sql.Stmt
	saveQueueStmt   *sql.Stmt
	loadQueueStmt   *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at dbPath and ensures the
// schema exists. Caller should Close() it when finished.
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with few connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA busy_timeout=5000;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables is idempotent and safe to call multiple times
func (db *Database) createTables() error {
	playsTable := `
	CREATE TABLE IF NOT EXISTS plays (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		track_id TEXT NOT NULL,
		title TEXT NOT NULL,
		album TEXT NOT NULL DEFAULT '',
		played_at DATETIME NOT NULL
	);`

	// Single-row table holding the last queue
	queueTable := `
	CREATE TABLE IF NOT EXISTS queue_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		tracks_json TEXT NOT NULL,
		current_index INTEGER NOT NULL DEFAULT -1,
		mode TEXT NOT NULL,
		volume REAL NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_plays_played_at ON plays(played_at);",
		"CREATE INDEX IF NOT EXISTS idx_plays_track ON plays(track_id);",
	}

	for _, table := range []string{playsTable, queueTable} {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}
	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}
	return nil
}

// prepareStatements prepares the statements used on every play
func (db *Database) prepareStatements() error {
	var err error

	db.insertPlayStmt, err = db.conn.Prepare(`
		INSERT INTO plays (track_id, title, album, played_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert play statement: %w", err)
	}

	db.recentPlaysStmt, err = db.conn.Prepare(`
		SELECT id, track_id, title, album, played_at
		FROM plays ORDER BY played_at DESC, id DESC LIMIT ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent plays statement: %w", err)
	}

	db.saveQueueStmt, err = db.conn.Prepare(`
		INSERT INTO queue_state (id, tracks_json, current_index, mode, volume, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tracks_json=excluded.tracks_json,
			current_index=excluded.current_index,
			mode=excluded.mode,
			volume=excluded.volume,
			updated_at=excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare save queue statement: %w", err)
	}

	db.loadQueueStmt, err = db.conn.Prepare(`
		SELECT tracks_json, current_index, mode, volume, updated_at FROM queue_state WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to prepare load queue statement: %w", err)
	}

	return nil
}

// RecordPlay stores that track started playing at the given time
func (db *Database) RecordPlay(track models.Track, at time.Time) (int64, error) {
	res, err := db.insertPlayStmt.Exec(track.ID, track.Title, track.Album, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record play: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	db.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"title":    track.Title,
		"play_id":  id,
	}).Debug("Recorded play")
	return id, nil
}

// RecentPlays returns up to limit plays, newest first
func (db *Database) RecentPlays(limit int) ([]Play, error) {
	if limit <= 0 {
		return []Play{}, nil
	}

	rows, err := db.recentPlaysStmt.Query(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	plays := []Play{}
	for rows.Next() {
		var p Play
		if err := rows.Scan(&p.ID, &p.TrackID, &p.Title, &p.Album, &p.PlayedAt); err != nil {
			return nil, err
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// TopTracks returns the most played tracks, most played first
func (db *Database) TopTracks(limit int) ([]PlayCount, error) {
	rows, err := db.conn.Query(`
		SELECT track_id, MAX(title), MAX(album), COUNT(*) AS n
		FROM plays GROUP BY track_id
		ORDER BY n DESC, MAX(played_at) DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query play counts: %w", err)
	}
	defer rows.Close()

	counts := []PlayCount{}
	for rows.Next() {
		var c PlayCount
		if err := rows.Scan(&c.TrackID, &c.Title, &c.Album, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// SaveQueue replaces the stored queue
func (db *Database) SaveQueue(state QueueState) error {
	tracks := state.Tracks
	if tracks == nil {
		tracks = []models.Track{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := db.saveQueueStmt.Exec(string(data), state.CurrentIndex, state.Mode, state.Volume, updated.UTC()); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}

	db.logger.WithFields(logrus.Fields{
		"tracks": len(tracks),
		"index":  state.CurrentIndex,
	}).Debug("Saved queue state")
	return nil
}

// LoadQueue returns the stored queue; found is false when none was saved
func (db *Database) LoadQueue() (QueueState, bool, error) {
	var (
		state QueueState
		data  string
	)
	err := db.loadQueueStmt.QueryRow().Scan(&data, &state.CurrentIndex, &state.Mode, &state.Volume, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QueueState{}, false, nil
	}
	if err != nil {
		return QueueState{}, false, fmt.Errorf("failed to load queue: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &state.Tracks); err != nil {
		return QueueState{}, false, fmt.Errorf("failed to decode queue: %w", err)
	}
	return state, true, nil
}

// Ping checks the connection is usable
func (db *Database) Ping() error {
	var one int
	return db.conn.QueryRow("SELECT 1").Scan(&one)
}

// Close closes the prepared statements and the underlying connection.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.insertPlayStmt,
		db.recentPlaysStmt,
		db.saveQueueStmt,
		db.loadQueueStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
