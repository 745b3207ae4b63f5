// Package filing runs the save protocol that files the attached documents of
// a folio: validate, confirm, resolve destinations, submit one record per
// document in order, then copy every file to its destination.
//
// Record submission and file copy are not atomic together. A submission
// failure stops the protocol but leaves already accepted records in place,
// and copy failures are collected and reported per file.
package filing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/domain/destination"
	"github.com/ehr/folio/internal/domain/documents"
	"github.com/ehr/folio/internal/domain/session"
	"github.com/ehr/folio/internal/platform/notification"
)

// State is the position of the engine in the save protocol.
type State string

const (
	StateIdle                  State = "idle"
	StateValidating            State = "validating"
	StateAwaitingConfirmation  State = "awaiting-confirmation"
	StateResolvingDestinations State = "resolving-destinations"
	StateSubmittingRecords     State = "submitting-records"
	StateCopyingFiles          State = "copying-files"
	StateCompleted             State = "completed"
	StateCompletedWithErrors   State = "completed-with-errors"
	StateFailed                State = "failed"
)

// Outcome is the result reported to the presentation layer.
type Outcome string

const (
	OutcomeCompleted           Outcome = "completed"
	OutcomeCompletedWithErrors Outcome = "completed-with-errors"
	OutcomeValidationFailed    Outcome = "validation-failed"
	OutcomeDeclined            Outcome = "declined"
)

var (
	ErrSaveInProgress         = errors.New("a save is already in progress")
	ErrRecordSubmissionFailed = errors.New("record submission failed")
)

// RecordSubmissionError reports the record that stopped the save.
type RecordSubmissionError struct {
	Index    int
	Document string
	Accepted int
	Err      error
}

func (e *RecordSubmissionError) Error() string {
	return fmt.Sprintf("record %d (%s) rejected after %d accepted: %v", e.Index+1, e.Document, e.Accepted, e.Err)
}

func (e *RecordSubmissionError) Unwrap() error { return e.Err }

func (e *RecordSubmissionError) Is(target error) bool {
	return target == ErrRecordSubmissionFailed
}

// CopyFailure itemizes a document whose record was saved but whose file was
// not copied.
type CopyFailure struct {
	Name            string `json:"name"`
	DestinationName string `json:"dest_name"`
	DestinationDir  string `json:"dest_dir"`
	DestinationPath string `json:"dest_path"`
	Error           string `json:"error"`
}

// FiledDocument is a document whose record and file were both written.
type FiledDocument struct {
	Name            string `json:"name"`
	TypeCode        string `json:"type_code"`
	Sequence        int    `json:"sequence"`
	DestinationPath string `json:"dest_path"`
	Bytes           int64  `json:"bytes"`
}

// Result is the outcome of one Run.
type Result struct {
	Outcome      Outcome             `json:"outcome"`
	Message      string              `json:"message,omitempty"`
	Invalid      []documents.Invalid `json:"invalid,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
	Filed        []FiledDocument     `json:"filed,omitempty"`
	CopyFailures []CopyFailure       `json:"copy_failures,omitempty"`
	Accepted     int                 `json:"records_accepted"`
}

// DestinationResolver resolves the directories of a set of type codes.
type DestinationResolver interface {
	ResolveAll(ctx context.Context, codes []string) destination.Resolution
}

// Settings are the engine's fixed parameters.
type Settings struct {
	FallbackDir   string
	Backpressure  Backpressure
	RedirectDelay time.Duration
	Defaults      RecordDefaults
}

type operatorKey struct{}

// WithOperator sets the registering user for saves run with ctx.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

func operatorFrom(ctx context.Context, fallback string) string {
	if op, ok := ctx.Value(operatorKey{}).(string); ok && op != "" {
		return op
	}
	return fallback
}

// Engine runs the save protocol over one session and batch.
type Engine struct {
	sess      *session.Session
	batch     *documents.Batch
	resolver  DestinationResolver
	submitter Submitter
	copier    Copier
	journal   Journal
	flash     *notification.FlashStore
	settings  Settings
	logger    zerolog.Logger

	now       func() time.Time
	afterFunc func(d time.Duration, f func())

	run   sync.Mutex
	mu    sync.RWMutex
	state State
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal records every accepted record.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithFlash stores the completion notification for the next screen.
func WithFlash(f *notification.FlashStore) Option {
	return func(e *Engine) { e.flash = f }
}

// WithScheduler replaces time.AfterFunc for the delayed session clear.
func WithScheduler(fn func(d time.Duration, f func())) Option {
	return func(e *Engine) { e.afterFunc = fn }
}

// WithClock replaces time.Now for the capture timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(sess *session.Session, batch *documents.Batch, resolver DestinationResolver,
	submitter Submitter, copier Copier, settings Settings, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		sess:      sess,
		batch:     batch,
		resolver:  resolver,
		submitter: submitter,
		copier:    copier,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current protocol state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Running reports whether a save is in flight.
func (e *Engine) Running() bool {
	if e.run.TryLock() {
		e.run.Unlock()
		return false
	}
	return true
}

func (e *Engine) transition(to State) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.mu.Unlock()
	e.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("save protocol transition")
}

// Run executes the save protocol. Validation failures and a declined prompt
// are reported through the Result with a nil error. A rejected record returns
// a *RecordSubmissionError and no file is copied.
func (e *Engine) Run(ctx context.Context, confirmer Confirmer) (*Result, error) {
	if !e.run.TryLock() {
		return nil, ErrSaveInProgress
	}
	defer e.run.Unlock()

	e.transition(StateValidating)
	if res := e.validate(); res != nil {
		e.transition(StateIdle)
		return res, nil
	}
	docs := e.batch.List()

	e.transition(StateAwaitingConfirmation)
	ok, err := confirmer.Confirm(ctx, Prompt{
		Title:     "Close folio",
		Message:   fmt.Sprintf("%d document(s) will be filed and the folio closed.", len(docs)),
		Documents: len(docs),
		Accept:    "Close folio and save",
		Decline:   "Keep reviewing",
	})
	if err != nil {
		e.transition(StateIdle)
		return nil, fmt.Errorf("confirmation: %w", err)
	}
	if !ok {
		e.transition(StateIdle)
		return &Result{Outcome: OutcomeDeclined}, nil
	}

	// Past confirmation the protocol runs to its end. Only upstream failures,
	// bounded by the submitter's own timeouts, may stop it.
	ctx = context.WithoutCancel(ctx)
	res := &Result{}

	e.transition(StateResolvingDestinations)
	dirs := e.resolveDestinations(ctx, docs, res)

	e.transition(StateSubmittingRecords)
	docs, err = e.submitRecords(ctx, docs, dirs, res)
	if err != nil {
		e.transition(StateFailed)
		e.logger.Error().Err(err).Int("accepted", res.Accepted).Msg("save stopped")
		return res, err
	}

	e.transition(StateCopyingFiles)
	e.copyFiles(ctx, docs, res)

	e.batch.Clear(ctx)
	if len(res.CopyFailures) > 0 {
		res.Outcome = OutcomeCompletedWithErrors
		res.Message = fmt.Sprintf("%d record(s) saved, %d file(s) not copied", res.Accepted, len(res.CopyFailures))
		e.transition(StateCompletedWithErrors)
		return res, nil
	}

	res.Outcome = OutcomeCompleted
	res.Message = fmt.Sprintf("%d document(s) filed, folio closed", len(res.Filed))
	e.complete(res)
	e.transition(StateCompleted)
	return res, nil
}

func (e *Engine) validate() *Result {
	if !e.sess.IsIdentified() {
		return &Result{Outcome: OutcomeValidationFailed, Message: "no folio is open"}
	}
	if e.batch.Len() == 0 {
		return &Result{Outcome: OutcomeValidationFailed, Message: "no documents attached"}
	}
	if invalid := e.batch.ValidateAll(); len(invalid) > 0 {
		return &Result{
			Outcome: OutcomeValidationFailed,
			Message: fmt.Sprintf("%d document(s) without a valid type code", len(invalid)),
			Invalid: invalid,
		}
	}
	return nil
}

func (e *Engine) resolveDestinations(ctx context.Context, docs []documents.Document, res *Result) map[string]string {
	seen := make(map[string]bool)
	var codes []string
	for _, d := range docs {
		if !seen[d.TypeCode] {
			seen[d.TypeCode] = true
			codes = append(codes, d.TypeCode)
		}
	}

	resolution := e.resolver.ResolveAll(ctx, codes)
	dirs := make(map[string]string, len(codes))
	for _, code := range codes {
		if dir, ok := resolution.Dirs[code]; ok {
			dirs[code] = dir
		}
	}
	for _, code := range resolution.Failed() {
		dirs[code] = destination.NormalizeUNC(e.settings.FallbackDir)
		msg := fmt.Sprintf("no destination for code %s, using %s", code, dirs[code])
		res.Warnings = append(res.Warnings, msg)
		e.logger.Warn().Err(resolution.Errors[code]).Str("code", code).Msg("destination fallback")
	}
	return dirs
}

func (e *Engine) submitRecords(ctx context.Context, docs []documents.Document, dirs map[string]string, res *Result) ([]documents.Document, error) {
	snap := e.sess.Snapshot()
	capturedAt := e.now()
	defaults := e.settings.Defaults
	defaults.Operator = operatorFrom(ctx, defaults.Operator)

	documents.AssignSequenceNumbers(docs)

	var last time.Time
	for i := range docs {
		d := &docs[i]
		if d.RecordAccepted {
			res.Accepted++
			continue
		}
		d.DestinationDir = dirs[d.TypeCode]
		d.FileName = FileName(d.TypeCode, snap, d.SequenceNumber, d.Name)
		if err := e.batch.Assign(d.ID, d.SequenceNumber, d.DestinationDir, d.FileName); err != nil {
			return nil, &RecordSubmissionError{Index: i, Document: d.Name, Accepted: res.Accepted, Err: err}
		}

		rec, err := BuildRecord(*d, snap, defaults, capturedAt)
		if err != nil {
			return nil, &RecordSubmissionError{Index: i, Document: d.Name, Accepted: res.Accepted, Err: err}
		}

		if err := e.settings.Backpressure.Wait(ctx, last); err != nil {
			return nil, &RecordSubmissionError{Index: i, Document: d.Name, Accepted: res.Accepted, Err: err}
		}
		err = e.submitter.Submit(ctx, rec)
		last = time.Now()
		if err != nil {
			return nil, &RecordSubmissionError{Index: i, Document: d.Name, Accepted: res.Accepted, Err: err}
		}

		d.RecordAccepted = true
		e.batch.MarkRecordAccepted(d.ID)
		res.Accepted++
		e.logger.Info().
			Str("document", d.Name).
			Str("file_name", d.FileName).
			Int("sequence", d.SequenceNumber).
			Msg("record accepted")

		if e.journal != nil {
			if err := e.journal.Append(rec); err != nil {
				e.logger.Warn().Err(err).Str("document", d.Name).Msg("journal append failed")
			}
		}
	}
	return docs, nil
}

func (e *Engine) copyFiles(ctx context.Context, docs []documents.Document, res *Result) {
	for _, d := range docs {
		out, err := e.copier.Copy(ctx, d.Source, d.DestinationDir, d.FileName)
		if err != nil {
			res.CopyFailures = append(res.CopyFailures, CopyFailure{
				Name:            d.Name,
				DestinationName: d.FileName,
				DestinationDir:  d.DestinationDir,
				DestinationPath: destination.JoinUNC(d.DestinationDir, d.FileName),
				Error:           err.Error(),
			})
			e.logger.Error().Err(err).Str("document", d.Name).Str("dest", d.FileName).Msg("copy failed")
			continue
		}
		res.Filed = append(res.Filed, FiledDocument{
			Name:            d.Name,
			TypeCode:        d.TypeCode,
			Sequence:        d.SequenceNumber,
			DestinationPath: out.DestinationPath,
			Bytes:           out.Bytes,
		})
	}
}

func (e *Engine) complete(res *Result) {
	e.sess.Close()
	if e.flash != nil {
		e.flash.Put(notification.Flash{
			Title:    "Folio closed",
			Message:  res.Message,
			Severity: notification.SeveritySuccess,
		})
	}
	e.afterFunc(e.settings.RedirectDelay, func() { e.sess.ClearIfClosed() })
}
