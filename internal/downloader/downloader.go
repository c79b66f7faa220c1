package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/models"
	"github.com/maltedev/channel-catalog-scraper/internal/ratelimit"
	"github.com/maltedev/channel-catalog-scraper/internal/storage"
)

var ErrDownload = errors.New("audio download failed")

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// Sanitize makes s safe to use as part of a file name.
func Sanitize(s string) string {
	s = invalidFilenameChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, "_")
	return strings.TrimSpace(s)
}

// CommandRunner executes an external program without a shell.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Options struct {
	Binary    string
	OutputDir string
	Delay     time.Duration
	Now       func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Binary:    "yt-dlp",
		OutputDir: "downloaded_audio",
		Delay:     2 * time.Second,
	}
}

type Failure struct {
	URL   string
	Title string
	Err   error
}

// Summary reports what a batch did with each item.
type Summary struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
	Failures   []Failure
}

// Downloader extracts mp3 audio for catalog entries one at a time.
type Downloader struct {
	opts    Options
	runner  CommandRunner
	limiter *ratelimit.AdaptiveRateLimiter
	ledger  *storage.Ledger
	logger  *slog.Logger
}

// New prepares the output directory. ledger may be nil, in which case every
// item is downloaded.
func New(opts Options, runner CommandRunner, ledger *storage.Ledger, logger *slog.Logger) (*Downloader, error) {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOptions().OutputDir
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Downloader{
		opts:    opts,
		runner:  runner,
		limiter: ratelimit.NewAdaptiveRateLimiter(opts.Delay, opts.Delay),
		ledger:  ledger,
		logger:  logger.With("component", "downloader"),
	}, nil
}

// OutputPath is where the audio for item ends up. Items without an upload
// date are stamped with the current time in Unix milliseconds.
func (d *Downloader) OutputPath(item models.ScrapedItem) string {
	date := item.UploadDate
	if date == "" {
		date = strconv.FormatInt(d.opts.Now().UnixMilli(), 10)
	}
	name := Sanitize(item.Title) + "_" + Sanitize(date) + ".mp3"
	return filepath.Join(d.opts.OutputDir, name)
}

// ProcessAll downloads every item in order. A failed item is logged and the
// batch moves on; only a done ctx stops it early.
func (d *Downloader) ProcessAll(ctx context.Context, items []models.ScrapedItem) (Summary, error) {
	summary := Summary{Total: len(items)}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if d.ledger != nil && d.ledger.Completed(item.URL) {
			d.logger.Info("already downloaded, skipping", "title", item.Title, "url", item.URL)
			summary.Skipped++
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		path, err := d.download(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			d.limiter.RecordError()
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{URL: item.URL, Title: item.Title, Err: err})
			d.logger.Error("failed to download", "title", item.Title, "url", item.URL, "error", err)
			d.record(storage.DownloadRecord{URL: item.URL, Title: item.Title, Status: storage.StatusFailed, Error: err.Error()})
			continue
		}

		d.limiter.RecordSuccess()
		summary.Downloaded++
		d.logger.Info("finished", "title", item.Title, "path", path)
		d.record(storage.DownloadRecord{URL: item.URL, Title: item.Title, OutputPath: path, Status: storage.StatusCompleted})
	}

	d.logger.Info("all downloads completed",
		"total", summary.Total,
		"downloaded", summary.Downloaded,
		"skipped", summary.Skipped,
		"failed", summary.Failed)

	return summary, nil
}

func (d *Downloader) download(ctx context.Context, item models.ScrapedItem) (string, error) {
	path := d.OutputPath(item)
	d.logger.Info("downloading", "title", item.Title, "url", item.URL)

	out, err := d.runner.Run(ctx, d.opts.Binary, "-x", "--audio-format", "mp3", "-o", path, item.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v: %s", ErrDownload, err, lastLine(out))
	}
	return path, nil
}

func (d *Downloader) record(rec storage.DownloadRecord) {
	if d.ledger == nil {
		return
	}
	if err := d.ledger.Record(rec); err != nil {
		d.logger.Warn("failed to update download ledger", "url", rec.URL, "error", err)
	}
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
