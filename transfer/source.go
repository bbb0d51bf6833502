package transfer

import (
	"os"
	"path/filepath"
	"strings"
)

// DirSource serves items from a flat directory, item ID as file name. It
// is the simplest useful library backing; anything fancier just needs to
// implement Source.
type DirSource struct {
	Root string
}

func (s DirSource) PathForItem(itemID string) (string, bool) {
	if s.Root == "" || itemID == "" {
		return "", false
	}
	// item IDs are bare names, never paths
	if strings.ContainsAny(itemID, `/\`) || strings.Contains(itemID, "..") {
		return "", false
	}
	path := filepath.Join(s.Root, itemID)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Items lists the IDs currently in the library.
func (s DirSource) Items() []string {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil
	}
	items := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			items = append(items, entry.Name())
		}
	}
	return items
}
