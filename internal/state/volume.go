package state

import (
	"database/sql"
	"errors"
)

const defaultVolume = 100

// LoadVolume returns the saved volume preference (0-100). The second
// return reports whether a preference has been saved; when false the
// default is returned.
func (s *Store) LoadVolume() (int, bool, error) {
	var volume int
	row := s.db.QueryRow(`SELECT volume FROM volume_pref WHERE id = 1`)
	err := row.Scan(&volume)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultVolume, false, nil
	}
	if err != nil {
		return defaultVolume, false, err
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	return volume, true, nil
}

// SaveVolume persists the volume preference.
func (s *Store) SaveVolume(volume int) error {
	_, err := s.db.Exec(`
		INSERT INTO volume_pref (id, volume) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET volume = excluded.volume
	`, volume)
	return err
}
