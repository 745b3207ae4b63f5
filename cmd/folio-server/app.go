package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/config"
	"github.com/ehr/folio/internal/domain/destination"
	"github.com/ehr/folio/internal/domain/documents"
	"github.com/ehr/folio/internal/domain/encounter"
	"github.com/ehr/folio/internal/domain/filing"
	"github.com/ehr/folio/internal/domain/folio"
	"github.com/ehr/folio/internal/domain/identity"
	"github.com/ehr/folio/internal/domain/session"
	"github.com/ehr/folio/internal/platform/blobstore"
	"github.com/ehr/folio/internal/platform/db"
	"github.com/ehr/folio/internal/platform/hisclient"
	"github.com/ehr/folio/internal/platform/notification"
)

// app holds the wired components shared by serve and file.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	his          *hisclient.Client
	pool         *pgxpool.Pool
	staging      *blobstore.InMemoryBlobStore
	destinations *destination.Resolver
	svc          *folio.Service
}

func newHISClient(cfg *config.Config, base string, logger zerolog.Logger) *hisclient.Client {
	return hisclient.New(base,
		hisclient.WithTimeout(cfg.HTTPTimeout),
		hisclient.WithLogger(logger.With().Str("component", "hisclient").Logger()),
	)
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...filing.Option) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		his:     newHISClient(cfg, cfg.HISAPIBase, logger),
		staging: blobstore.NewInMemoryBlobStore(blobstore.WithMaxSize(int64(cfg.MaxUploadMB) << 20)),
	}

	var correlator identity.Correlator
	if cfg.UsesDatabaseCorrelation() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect correlation database: %w", err)
		}
		a.pool = pool
		correlator = identity.NewPGCorrelator(pool)
		logger.Info().Msg("identity correlation through the HIS database")
	} else {
		correlator = identity.NewHTTPCorrelator(newHISClient(cfg, cfg.CorrelationBaseURL, logger))
	}

	sess := session.New()
	batch := documents.NewBatch(logger.With().Str("component", "batch").Logger())
	flash := notification.NewFlashStore(cfg.FlashTTL)
	a.destinations = destination.NewResolver(a.his, logger.With().Str("component", "destination").Logger())

	var journal filing.Journal = filing.NewLogJournal(logger)
	if cfg.BackupFile != "" {
		journal = filing.NewFileJournal(cfg.BackupFile)
	}

	engineOpts := append([]filing.Option{filing.WithJournal(journal), filing.WithFlash(flash)}, opts...)
	engine := filing.NewEngine(sess, batch, a.destinations,
		filing.NewHTTPSubmitter(a.his, cfg.SubmitTimeout),
		filing.NewFileCopier(cfg.UNCMountRoot),
		filing.Settings{
			FallbackDir:   cfg.FallbackDestDir,
			Backpressure:  filing.Backpressure{MinInterval: cfg.SubmitInterval},
			RedirectDelay: cfg.RedirectDelay,
			Defaults: filing.RecordDefaults{
				RegistrationType: cfg.RegistrationType,
				ProcedureCode:    cfg.ProcedureCode,
				Operator:         cfg.DefaultOperator,
			},
		},
		logger.With().Str("component", "filing").Logger(),
		engineOpts...,
	)

	a.svc = folio.NewService(folio.Deps{
		Session:  sess,
		Batch:    batch,
		Identity: identity.NewResolver(correlator, logger.With().Str("component", "identity").Logger()),
		Encounter: encounter.NewService(a.his, encounter.Config{
			Facility:      cfg.BookingFacility,
			Service:       cfg.BookingService,
			BookingMethod: cfg.BookingMethod,
		}, logger.With().Str("component", "encounter").Logger()),
		Engine:  engine,
		Flash:   flash,
		Staging: a.staging,
	}, logger)

	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
