// Package folio exposes one working folio to the presentation layer: identity,
// encounter booking, the attached document batch and the save protocol.
package folio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/domain/documents"
	"github.com/ehr/folio/internal/domain/encounter"
	"github.com/ehr/folio/internal/domain/filing"
	"github.com/ehr/folio/internal/domain/identity"
	"github.com/ehr/folio/internal/domain/session"
	"github.com/ehr/folio/internal/platform/blobstore"
	"github.com/ehr/folio/internal/platform/notification"
)

var (
	// ErrNavigationBlocked is returned while a booked encounter has no
	// documents.
	ErrNavigationBlocked = errors.New("encounter booked: attach documents before leaving the folio")
	ErrNoFolio           = errors.New("no open folio")
)

// Upload is one file received from the presentation layer.
type Upload struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Deps are the collaborators of a Service. All are required.
type Deps struct {
	Session   *session.Session
	Batch     *documents.Batch
	Identity  *identity.Resolver
	Encounter *encounter.Service
	Engine    *filing.Engine
	Flash     *notification.FlashStore
	Staging   blobstore.BlobStore
}

type Service struct {
	Deps
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(deps Deps, logger zerolog.Logger) *Service {
	return &Service{Deps: deps, logger: logger, now: time.Now}
}

// Identify validates the identity and opens a new folio. The batch of any
// previous folio is discarded.
func (s *Service) Identify(ctx context.Context, documentType, documentNumber string) (*identity.Identity, error) {
	if s.Engine.Running() {
		return nil, filing.ErrSaveInProgress
	}
	if !s.Session.CanNavigateBack() {
		return nil, ErrNavigationBlocked
	}
	id, err := s.Identity.Identify(ctx, s.Session, documentType, documentNumber)
	if err != nil {
		return nil, err
	}
	s.Batch.Clear(ctx)
	return id, nil
}

// Book reserves the encounter of the open folio.
func (s *Service) Book(ctx context.Context) (*encounter.Report, error) {
	if s.Engine.Running() {
		return nil, filing.ErrSaveInProgress
	}
	return s.Encounter.Reserve(ctx, s.Session)
}

// View is the session as shown to the presentation layer.
type View struct {
	session.Snapshot
	SaveState filing.State `json:"save_state"`
	Documents int          `json:"documents"`
}

func (s *Service) View() View {
	return View{
		Snapshot:  s.Session.Snapshot(),
		SaveState: s.Engine.State(),
		Documents: s.Batch.Len(),
	}
}

func (s *Service) SetObservation(obs string) error {
	if !s.Session.IsIdentified() {
		return ErrNoFolio
	}
	s.Session.SetObservation(obs)
	return nil
}

// Leave returns to identification, discarding the folio and its batch.
func (s *Service) Leave(ctx context.Context) error {
	if s.Engine.Running() {
		return filing.ErrSaveInProgress
	}
	if !s.Session.CanNavigateBack() {
		return ErrNavigationBlocked
	}
	s.Batch.Clear(ctx)
	s.Session.Clear()
	return nil
}

// CanExit reports whether the application may be closed, and why not.
func (s *Service) CanExit() (bool, string) {
	if s.Engine.Running() {
		return false, filing.ErrSaveInProgress.Error()
	}
	if !s.Session.CanExitApplication() {
		return false, ErrNavigationBlocked.Error()
	}
	return true, ""
}

func (s *Service) Codes() []documents.TypeCode {
	return documents.Catalog()
}

// openFolio guards batch mutations.
func (s *Service) openFolio() error {
	if s.Engine.Running() {
		return filing.ErrSaveInProgress
	}
	if st := s.Session.State(); st == session.StateNotLoggedIn || st == session.StateClosed {
		return ErrNoFolio
	}
	return nil
}

// Attach stages the uploads and adds the accepted ones to the batch. Files
// that are not documents are reported, not attached.
func (s *Service) Attach(ctx context.Context, operator string, uploads []Upload) (documents.AttachResult, error) {
	if err := s.openFolio(); err != nil {
		return documents.AttachResult{}, err
	}

	sources := make([]documents.Source, 0, len(uploads))
	for _, u := range uploads {
		meta, err := s.stage(ctx, operator, u)
		if err != nil {
			s.release(ctx, sources, "release staged upload after failure")
			return documents.AttachResult{}, fmt.Errorf("stage %s: %w", u.Name, err)
		}
		sources = append(sources, documents.NewBlobSource(s.Staging, *meta))
	}
	return s.AttachSources(ctx, sources...)
}

// AttachSources adds already opened sources to the batch. Sources are
// released when the folio cannot take them.
func (s *Service) AttachSources(ctx context.Context, sources ...documents.Source) (documents.AttachResult, error) {
	if err := s.openFolio(); err != nil {
		s.release(ctx, sources, "release unattached source")
		return documents.AttachResult{}, err
	}

	res := s.Batch.Attach(ctx, sources...)
	if len(res.Accepted) > 0 {
		s.Session.MarkDocumentsUploaded()
	}
	s.logger.Info().
		Int("accepted", len(res.Accepted)).
		Int("rejected", res.RejectedCount).
		Int("batch", s.Batch.Len()).
		Msg("documents attached")
	return res, nil
}

func (s *Service) release(ctx context.Context, sources []documents.Source, msg string) {
	for _, src := range sources {
		if err := src.Release(ctx); err != nil {
			s.logger.Warn().Err(err).Str("name", src.Name()).Msg(msg)
		}
	}
}

func (s *Service) stage(ctx context.Context, operator string, u Upload) (*blobstore.BlobMetadata, error) {
	r, err := u.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return s.Staging.Upload(ctx, blobstore.BlobMetadata{
		FileName:    u.Name,
		ContentType: u.ContentType,
		CreatedAt:   s.now().UTC(),
		CreatedBy:   operator,
	}, r)
}

func (s *Service) Documents() []documents.Document {
	return s.Batch.List()
}

func (s *Service) SetTypeCode(id, raw string) (string, error) {
	if err := s.openFolio(); err != nil {
		return "", err
	}
	return s.Batch.SetTypeCode(id, raw)
}

func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.openFolio(); err != nil {
		return err
	}
	return s.Batch.Remove(ctx, id)
}

func (s *Service) Validate() []documents.Invalid {
	return s.Batch.ValidateAll()
}

// Save runs the save protocol. confirm answers the close-folio prompt the
// presentation layer has already shown.
func (s *Service) Save(ctx context.Context, operator string, confirm bool) (*filing.Result, error) {
	return s.SaveWith(ctx, operator, filing.Answer(confirm))
}

// SaveWith runs the save protocol, asking confirmer before anything is filed.
func (s *Service) SaveWith(ctx context.Context, operator string, confirmer filing.Confirmer) (*filing.Result, error) {
	if operator != "" {
		ctx = filing.WithOperator(ctx, operator)
	}
	return s.Engine.Run(ctx, confirmer)
}

func (s *Service) TakeFlash() (notification.Flash, bool) {
	return s.Flash.Take()
}
