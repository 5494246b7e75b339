package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/llehouerou/cadence/internal/db"
)

// TrackRow is a track in the saved queue.
type TrackRow struct {
	TrackID  string
	Title    string
	Artist   string
	URL      string
	Duration time.Duration
}

// Snapshot is the serializable subset of a playback session, written
// for crash/reload recovery.
type Snapshot struct {
	PlaylistID string // empty for ad hoc sessions
	TrackID    string
	TrackIndex int
	Position   time.Duration
	Playing    bool
	Shuffle    bool
	RepeatMode int
	Tracks     []TrackRow // the materialized queue, in order
	SavedAt    time.Time
}

func getSession(db *sql.DB) (*Snapshot, error) {
	var snap Snapshot
	var playlistID sql.NullString
	var positionMs, savedAt int64

	row := db.QueryRow(`
		SELECT playlist_id, track_id, track_index, position_ms, playing, shuffle, repeat_mode, saved_at
		FROM session WHERE id = 1
	`)
	err := row.Scan(
		&playlistID, &snap.TrackID, &snap.TrackIndex, &positionMs,
		&snap.Playing, &snap.Shuffle, &snap.RepeatMode, &savedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap.PlaylistID = dbutil.NullStringValue(playlistID)
	snap.Position = time.Duration(positionMs) * time.Millisecond
	snap.SavedAt = time.UnixMilli(savedAt)

	rows, err := db.Query(`
		SELECT track_id, title, artist, url, duration_ms
		FROM session_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t TrackRow
		var title, artist, url sql.NullString
		var durationMs sql.NullInt64

		if err := rows.Scan(&t.TrackID, &title, &artist, &url, &durationMs); err != nil {
			return nil, err
		}

		t.Title = dbutil.NullStringValue(title)
		t.Artist = dbutil.NullStringValue(artist)
		t.URL = dbutil.NullStringValue(url)
		t.Duration = time.Duration(dbutil.NullInt64Value(durationMs)) * time.Millisecond
		snap.Tracks = append(snap.Tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &snap, nil
}

func saveSession(sqlDB *sql.DB, snap Snapshot) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM session_tracks`); err != nil {
			return err
		}

		var playlistID any
		if snap.PlaylistID != "" {
			playlistID = snap.PlaylistID
		}

		savedAt := snap.SavedAt
		if savedAt.IsZero() {
			savedAt = time.Now()
		}

		_, err := tx.Exec(`
			INSERT INTO session (id, playlist_id, track_id, track_index, position_ms, playing, shuffle, repeat_mode, saved_at)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				playlist_id = excluded.playlist_id,
				track_id = excluded.track_id,
				track_index = excluded.track_index,
				position_ms = excluded.position_ms,
				playing = excluded.playing,
				shuffle = excluded.shuffle,
				repeat_mode = excluded.repeat_mode,
				saved_at = excluded.saved_at
		`, playlistID, snap.TrackID, snap.TrackIndex, snap.Position.Milliseconds(),
			snap.Playing, snap.Shuffle, snap.RepeatMode, savedAt.UnixMilli())
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO session_tracks (position, track_id, title, artist, url, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range snap.Tracks {
			_, err = stmt.Exec(i, t.TrackID, t.Title, t.Artist, t.URL, t.Duration.Milliseconds())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func clearSession(sqlDB *sql.DB) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM session_tracks`); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM session`)
		return err
	})
}
