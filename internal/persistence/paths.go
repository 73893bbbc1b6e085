// Package persistence implements the narrow write-ahead bridge that
// records moves, clock snapshots and evaluations as they are played,
// and rolls back the latest entry on a takeback. It treats the database as
// an append-only log, never a source of truth for game logic.
package persistence

import (
	"os"
	"path/filepath"
)

const appName = "centaurd"

// DataDir returns the directory used to store the BadgerDB database and the
// FEN log, creating it if necessary. On the target device this lives on the
// same SD card as the rest of the firmware's writable state.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	dataDir := filepath.Join(home, "."+appName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}
