// Package documents manages the in-memory batch of documents attached to the
// current folio: acceptance, type code annotation, validation and the
// per-code sequence numbering done at save time.
package documents

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidTypeCode  = errors.New("type code is not in the catalog")
	// ErrRecordAccepted is returned when a change would contradict a record
	// the HIS already holds for the document.
	ErrRecordAccepted = errors.New("document record already filed")
)

const maxRejectedSamples = 10

// Document is one attached document and the values computed for it at save
// time. Values returned by Batch are copies.
type Document struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Size           int64     `json:"size"`
	TypeCode       string    `json:"type_code"`
	SequenceNumber int       `json:"sequence_number,omitempty"`
	DestinationDir string    `json:"destination_dir,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	RecordAccepted bool      `json:"record_accepted"`
	AttachedAt     time.Time `json:"attached_at"`
	Source         Source    `json:"-"`
}

// AttachResult reports what Attach did with a set of candidate files.
type AttachResult struct {
	Accepted        []Document `json:"accepted"`
	RejectedCount   int        `json:"rejected_count"`
	RejectedSamples []string   `json:"rejected_samples,omitempty"`
}

// Invalid names a document that blocks the save.
type Invalid struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// IsAcceptedDocument reports whether a file is an accepted document type.
func IsAcceptedDocument(name, contentType string) bool {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return true
	}
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "application/pdf"
}

// Batch is the ordered list of attached documents. It is safe for concurrent
// use.
type Batch struct {
	mu     sync.Mutex
	docs   []*Document
	logger zerolog.Logger
	now    func() time.Time
}

func NewBatch(logger zerolog.Logger) *Batch {
	return &Batch{logger: logger, now: time.Now}
}

// Attach appends every accepted source in order. Rejected sources are
// released and reported without blocking the rest.
func (b *Batch) Attach(ctx context.Context, sources ...Source) AttachResult {
	var res AttachResult
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, src := range sources {
		if !IsAcceptedDocument(src.Name(), src.ContentType()) {
			res.RejectedCount++
			if len(res.RejectedSamples) < maxRejectedSamples {
				res.RejectedSamples = append(res.RejectedSamples, src.Name())
			}
			if err := src.Release(ctx); err != nil {
				b.logger.Warn().Err(err).Str("name", src.Name()).Msg("release rejected source")
			}
			continue
		}
		d := &Document{
			ID:         uuid.New().String(),
			Name:       src.Name(),
			Size:       src.Size(),
			AttachedAt: b.now().UTC(),
			Source:     src,
		}
		b.docs = append(b.docs, d)
		res.Accepted = append(res.Accepted, *d)
	}

	if res.RejectedCount > 0 {
		b.logger.Info().
			Int("rejected", res.RejectedCount).
			Strs("samples", res.RejectedSamples).
			Msg("rejected non-document files")
	}
	return res
}

// SetTypeCode normalizes raw and stores it on the document. An invalid value
// clears the code and returns ErrInvalidTypeCode. The code of a document whose
// record was accepted cannot change.
func (b *Batch) SetTypeCode(id, raw string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.find(id)
	if d == nil {
		return "", ErrDocumentNotFound
	}
	if d.RecordAccepted {
		return d.TypeCode, ErrRecordAccepted
	}
	code, ok := NormalizeCode(raw)
	if !ok {
		d.TypeCode = ""
		return "", ErrInvalidTypeCode
	}
	d.TypeCode = code
	return code, nil
}

// Remove deletes a document and releases its source. A document whose record
// was accepted stays until its file is copied.
func (b *Batch) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	idx := -1
	for i, d := range b.docs {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return ErrDocumentNotFound
	}
	d := b.docs[idx]
	if d.RecordAccepted {
		b.mu.Unlock()
		return ErrRecordAccepted
	}
	b.docs = append(b.docs[:idx], b.docs[idx+1:]...)
	b.mu.Unlock()

	if err := d.Source.Release(ctx); err != nil {
		b.logger.Warn().Err(err).Str("name", d.Name).Msg("release removed source")
	}
	return nil
}

// List returns copies of the documents in attachment order.
func (b *Batch) List() []Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Document, len(b.docs))
	for i, d := range b.docs {
		out[i] = *d
	}
	return out
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// ValidateAll returns the documents whose type code is unset or invalid.
func (b *Batch) ValidateAll() []Invalid {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Invalid
	for _, d := range b.docs {
		switch {
		case d.TypeCode == "":
			out = append(out, Invalid{ID: d.ID, Name: d.Name, Reason: "type code is not set"})
		default:
			if _, ok := Lookup(d.TypeCode); !ok {
				out = append(out, Invalid{ID: d.ID, Name: d.Name, Reason: ErrInvalidTypeCode.Error()})
			}
		}
	}
	return out
}

// Assign stores the values computed for a document at save time. Documents
// whose record was already accepted keep their values.
func (b *Batch) Assign(id string, seq int, dir, fileName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.find(id)
	if d == nil {
		return ErrDocumentNotFound
	}
	if d.RecordAccepted {
		return nil
	}
	d.SequenceNumber = seq
	d.DestinationDir = dir
	d.FileName = fileName
	return nil
}

// MarkRecordAccepted freezes a document's computed values.
func (b *Batch) MarkRecordAccepted(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d := b.find(id); d != nil {
		d.RecordAccepted = true
	}
}

// Clear empties the batch and releases every source.
func (b *Batch) Clear(ctx context.Context) {
	b.mu.Lock()
	docs := b.docs
	b.docs = nil
	b.mu.Unlock()

	for _, d := range docs {
		if err := d.Source.Release(ctx); err != nil {
			b.logger.Warn().Err(err).Str("name", d.Name).Msg("release cleared source")
		}
	}
}

func (b *Batch) find(id string) *Document {
	for _, d := range b.docs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// AssignSequenceNumbers numbers docs per type code in order, starting at 1.
// Documents whose record was already accepted keep their number and the
// counter for their code continues after it.
func AssignSequenceNumbers(docs []Document) {
	counters := make(map[string]int)
	for i := range docs {
		d := &docs[i]
		if d.RecordAccepted && d.SequenceNumber > 0 {
			if d.SequenceNumber > counters[d.TypeCode] {
				counters[d.TypeCode] = d.SequenceNumber
			}
			continue
		}
		counters[d.TypeCode]++
		d.SequenceNumber = counters[d.TypeCode]
	}
}
