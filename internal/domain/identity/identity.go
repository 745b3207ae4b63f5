// Package identity validates a (document type, document number) pair against
// the HIS and obtains the correlating secondary key that opens a folio.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/domain/session"
)

var (
	// ErrMissingInput is a validation error; no lookup is made.
	ErrMissingInput = errors.New("document type and document number are required")
	// ErrNotFound means the HIS has no record for the document number.
	ErrNotFound = errors.New("identity not found")
	// ErrLookupFailed covers transport and backend failures.
	ErrLookupFailed = errors.New("identity lookup failed")
)

// Identity is a validated HIS identity.
type Identity struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	SecondaryKey   string `json:"secondary_key"`
}

// Correlator returns the secondary key for a document number. Implementations
// return errors wrapping ErrNotFound or ErrLookupFailed.
type Correlator interface {
	Correlate(ctx context.Context, documentNumber string) (string, error)
}

type Resolver struct {
	correlator Correlator
	logger     zerolog.Logger
}

func NewResolver(c Correlator, logger zerolog.Logger) *Resolver {
	return &Resolver{correlator: c, logger: logger}
}

// Identify validates the pair and, on success, opens a new folio on sess.
// It never retries; on failure sess is left untouched.
func (r *Resolver) Identify(ctx context.Context, sess *session.Session, documentType, documentNumber string) (*Identity, error) {
	documentType = strings.TrimSpace(documentType)
	documentNumber = strings.TrimSpace(documentNumber)
	if documentType == "" || documentNumber == "" {
		return nil, ErrMissingInput
	}

	key, err := r.correlator.Correlate(ctx, documentNumber)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("document_type", documentType).
			Str("document_number", documentNumber).
			Msg("identity lookup failed")
		return nil, err
	}

	sess.Identify(documentType, documentNumber, key)
	r.logger.Info().
		Str("document_type", documentType).
		Str("document_number", documentNumber).
		Str("secondary_key", key).
		Msg("identity validated")

	return &Identity{
		DocumentType:   documentType,
		DocumentNumber: documentNumber,
		SecondaryKey:   key,
	}, nil
}
