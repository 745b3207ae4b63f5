package filing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/platform/hisclient"
)

// Submitter persists one record with the HIS.
type Submitter interface {
	Submit(ctx context.Context, rec Record) error
}

// HTTPSubmitter posts records to imapronq/create, one record per request.
type HTTPSubmitter struct {
	client  *hisclient.Client
	timeout time.Duration
}

func NewHTTPSubmitter(client *hisclient.Client, timeout time.Duration) *HTTPSubmitter {
	return &HTTPSubmitter{client: client, timeout: timeout}
}

func (s *HTTPSubmitter) Submit(ctx context.Context, rec Record) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.client.Do(ctx, http.MethodPost, s.client.URL("imapronq", "create"), []Record{rec})
	if err != nil {
		return err
	}
	return resp.Err()
}

// Backpressure spaces out consecutive submissions to a legacy backend.
type Backpressure struct {
	MinInterval time.Duration
}

// DefaultBackpressure is the pause used between record submissions.
var DefaultBackpressure = Backpressure{MinInterval: 100 * time.Millisecond}

// Wait blocks until MinInterval has passed since last, or ctx is done. A zero
// last means nothing was submitted yet and returns immediately.
func (b Backpressure) Wait(ctx context.Context, last time.Time) error {
	if b.MinInterval <= 0 || last.IsZero() {
		return nil
	}
	d := b.MinInterval - time.Since(last)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Journal keeps a local copy of every accepted record.
type Journal interface {
	Append(rec Record) error
}

// FileJournal appends accepted records to a text file.
type FileJournal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path, now: time.Now}
}

const journalRule = "========================================"

func (j *FileJournal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.MarshalIndent([]Record{rec}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(j.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\nrecorded_at: %s\npayload (imapronq/create):\n%s\n\n",
		journalRule, j.now().Format(time.RFC3339), data)
	return err
}

// LogJournal writes accepted records to the logger only.
type LogJournal struct {
	logger zerolog.Logger
}

func NewLogJournal(logger zerolog.Logger) *LogJournal {
	return &LogJournal{logger: logger}
}

func (j *LogJournal) Append(rec Record) error {
	j.logger.Info().
		Int("type_code", rec.Key.TypeCode).
		Int("sequence", rec.Key.Sequence).
		Str("path", rec.DestinationPath).
		Msg("record accepted")
	return nil
}
