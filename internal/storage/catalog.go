package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/models"
)

var (
	ErrEmptyPath    = errors.New("catalog path is required")
	ErrInvalidEntry = errors.New("invalid catalog entry")
)

// DefaultCatalogName is the file name a crawl exports to when none is given.
func DefaultCatalogName(t time.Time) string {
	return fmt.Sprintf("youtube_content_%d.json", t.UnixMilli())
}

// WriteCatalog stores items as an indented JSON array. The file is written
// to a sibling temp file first and renamed into place.
func WriteCatalog(path string, items []models.ScrapedItem) error {
	if path == "" {
		return ErrEmptyPath
	}
	if items == nil {
		items = []models.ScrapedItem{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return writeAtomic(path, data)
}

// ReadCatalog loads a catalog and rejects it if any entry is inconsistent.
func ReadCatalog(path string) ([]models.ScrapedItem, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []models.ScrapedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
	}
	for i := range items {
		if problems := items[i].Validate(); len(problems) > 0 {
			return nil, fmt.Errorf("%w: entry %d: %s", ErrInvalidEntry, i, strings.Join(problems, "; "))
		}
	}
	return items, nil
}

func writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, path)
}
