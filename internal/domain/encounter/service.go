// Package encounter reserves the HIS encounter for an identified folio. The
// three-call chain (demographics, admission, booking) degrades step by step:
// each failure is reported in a running log and the session keeps the last
// state it reached.
package encounter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/domain/session"
	"github.com/ehr/folio/internal/platform/hisclient"
)

var ErrNotIdentified = errors.New("session has no validated identity")

// Config holds the fixed booking parameters.
type Config struct {
	Facility      string
	Service       string
	BookingMethod string
}

// LogLine is one entry of the running log shown to the operator.
type LogLine struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Report is the outcome of a reservation attempt.
type Report struct {
	Lines           []LogLine `json:"log"`
	FirstNames      string    `json:"first_names"`
	LastNames       string    `json:"last_names"`
	AdmissionID     string    `json:"admission_id,omitempty"`
	EncounterNumber string    `json:"encounter_number,omitempty"`
	Booked          bool      `json:"booked"`
}

type Service struct {
	client *hisclient.Client
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(client *hisclient.Client, cfg Config, logger zerolog.Logger) *Service {
	if cfg.BookingMethod == "" {
		cfg.BookingMethod = http.MethodPut
	}
	return &Service{client: client, cfg: cfg, logger: logger, now: time.Now}
}

func (s *Service) addLine(r *Report, level zerolog.Level, msg string, args ...interface{}) {
	line := fmt.Sprintf(msg, args...)
	r.Lines = append(r.Lines, LogLine{At: s.now().UTC(), Level: level.String(), Message: line})
	s.logger.WithLevel(level).Msg(line)
}

// Reserve runs demographics, admission and booking against the identified
// session. Only a missing identity is returned as an error; every upstream
// failure is recorded in the report.
func (s *Service) Reserve(ctx context.Context, sess *session.Session) (*Report, error) {
	if !sess.IsIdentified() {
		return nil, ErrNotIdentified
	}
	snap := sess.Snapshot()
	docType, docNumber := snap.DocumentType, snap.DocumentNumber
	r := &Report{}

	s.addLine(r, zerolog.InfoLevel, "looking up demographics for %s %s", docType, docNumber)
	if first, last, err := s.fetchNames(ctx, docType, docNumber); err != nil {
		s.addLine(r, zerolog.WarnLevel, "demographics unavailable: %v", err)
	} else {
		r.FirstNames, r.LastNames = first, last
		sess.SetNames(first, last)
		s.addLine(r, zerolog.InfoLevel, "patient: %s %s", first, last)
	}

	s.addLine(r, zerolog.InfoLevel, "looking up active admission")
	admission, err := s.fetchAdmission(ctx, docType, docNumber)
	if err != nil {
		s.addLine(r, zerolog.WarnLevel, "admission unavailable, booking skipped: %v", err)
		return r, nil
	}
	r.AdmissionID = admission
	s.addLine(r, zerolog.InfoLevel, "admission %s", admission)

	s.addLine(r, zerolog.InfoLevel, "booking encounter at %s/%s", s.cfg.Facility, s.cfg.Service)
	number, err := s.book(ctx, docType, docNumber, admission)
	if err != nil {
		s.addLine(r, zerolog.WarnLevel, "booking failed: %v", err)
		return r, nil
	}

	sess.MarkBooked(number)
	r.EncounterNumber = number
	r.Booked = true
	s.addLine(r, zerolog.InfoLevel, "encounter booked, hiscnum %s", number)
	return r, nil
}

func (s *Service) fetchNames(ctx context.Context, docType, docNumber string) (string, string, error) {
	resp, err := s.client.Get(ctx, "capbas", "get", docType, docNumber)
	if err != nil {
		return "", "", err
	}
	if err := resp.Err(); err != nil {
		return "", "", err
	}
	first, last := ExtractNames(resp.Value())
	return first, last, nil
}

func (s *Service) fetchAdmission(ctx context.Context, docType, docNumber string) (string, error) {
	resp, err := s.client.Get(ctx, "ingresos", "get", docNumber, docType)
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	id, ok := ExtractAdmissionID(resp.Value())
	if !ok {
		return "", errors.New("no admission id in response")
	}
	return id, nil
}

func (s *Service) book(ctx context.Context, docType, docNumber, admission string) (string, error) {
	target := s.client.URL("hccom", "v2", "booking", docType, docNumber, admission, s.cfg.Facility, s.cfg.Service)
	resp, err := s.client.Do(ctx, s.cfg.BookingMethod, target, nil)
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	number, ok := ExtractEncounterNumber(resp.Value(), resp.Body)
	if !ok {
		return "", errors.New("no hiscnum in booking response")
	}
	return number, nil
}
