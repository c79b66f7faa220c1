package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogName(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	assert.Equal(t, "youtube_content_1700000000123.json", DefaultCatalogName(ts))
}

func TestWriteAndReadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.json")
	items := []models.ScrapedItem{
		{URL: "https://www.youtube.com/watch?v=a", Title: "A", Type: models.ItemTypeVideo, Duration: "1:00"},
		{URL: "https://www.youtube.com/watch?v=b", Title: "B", Type: models.ItemTypeLivestream, IsLive: true},
	}

	require.NoError(t, WriteCatalog(path, items))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n  {"), "catalog is indented")
	assert.NoFileExists(t, path+".tmp")

	read, err := ReadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, items, read)
}

func TestWriteCatalog_EmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteCatalog(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestCatalogErrors(t *testing.T) {
	assert.ErrorIs(t, WriteCatalog("", nil), ErrEmptyPath)

	_, err := ReadCatalog("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = ReadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = ReadCatalog(bad)
	assert.Error(t, err)

	inconsistent := filepath.Join(t.TempDir(), "inconsistent.json")
	require.NoError(t, os.WriteFile(inconsistent,
		[]byte(`[{"url":"https://www.youtube.com/watch?v=a","type":"video"},{"url":"","type":"clip"}]`), 0o644))
	_, err = ReadCatalog(inconsistent)
	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	ledger, err := NewLedger(path)
	require.NoError(t, err)

	require.NoError(t, ledger.Record(DownloadRecord{URL: "u1", Title: "one", Status: StatusCompleted}))
	require.NoError(t, ledger.Record(DownloadRecord{URL: "u2", Title: "two", Status: StatusFailed, Error: "exit status 1"}))
	assert.Error(t, ledger.Record(DownloadRecord{Title: "no url"}))

	assert.True(t, ledger.Completed("u1"))
	assert.False(t, ledger.Completed("u2"))
	assert.False(t, ledger.Completed("u3"))

	reopened, err := NewLedger(path)
	require.NoError(t, err)

	rec, ok := reopened.Get("u2")
	require.True(t, ok)
	assert.Equal(t, "exit status 1", rec.Error)
	assert.Equal(t, map[string]int{StatusCompleted: 1, StatusFailed: 1, "total": 2}, reopened.Stats())
}
