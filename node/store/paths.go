package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// LedgerDir returns the on-disk directory for a settlement network under datadir:
//
//	datadir/ledgers/<network>/
func LedgerDir(datadir string, network string) string {
	return filepath.Join(datadir, "ledgers", network)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
