package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DownloadRecord tracks one item handed to the audio downloader.
type DownloadRecord struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	OutputPath string    `json:"output_path,omitempty"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
	Error      string    `json:"error,omitempty"`
}

// Ledger persists download outcomes keyed by URL so an interrupted batch can
// be resumed without fetching finished files again.
type Ledger struct {
	mu       sync.RWMutex
	records  map[string]*DownloadRecord
	filename string
}

func NewLedger(filename string) (*Ledger, error) {
	l := &Ledger{
		records:  make(map[string]*DownloadRecord),
		filename: filename,
	}

	if err := l.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Get(url string) (DownloadRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.records[url]
	if !ok {
		return DownloadRecord{}, false
	}
	return *r, true
}

func (l *Ledger) Completed(url string) bool {
	r, ok := l.Get(url)
	return ok && r.Status == StatusCompleted
}

// Record stores the outcome for rec.URL and saves the ledger.
func (l *Ledger) Record(rec DownloadRecord) error {
	if rec.URL == "" {
		return fmt.Errorf("url is required")
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	rec.UpdatedAt = time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[rec.URL] = &rec
	return l.save()
}

func (l *Ledger) Stats() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]int)
	for _, r := range l.records {
		stats[r.Status]++
	}
	stats["total"] = len(l.records)
	return stats
}

func (l *Ledger) save() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(l.filename, data)
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &l.records)
}
