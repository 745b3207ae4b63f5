// Package session holds the state of the single folio being worked on and
// derives the navigation and exit gates from it.
package session

import (
	"strings"
	"sync"
)

// State is the derived progress of a folio.
type State string

const (
	StateNotLoggedIn      State = "not-logged-in"
	StateIdentified       State = "identified"
	StateEncounterBooked  State = "encounter-booked"
	StateDocumentsPending State = "documents-pending"
	StateClosed           State = "closed"
)

// Session is the process-wide folio state. All methods are safe for
// concurrent use.
type Session struct {
	mu sync.RWMutex

	identified        bool
	documentType      string
	documentNumber    string
	secondaryKey      string
	encounterBooked   bool
	documentsUploaded bool
	folioLocked       bool
	folioClosed       bool
	observation       string
	firstNames        string
	lastNames         string
}

// New returns an empty, not-logged-in Session.
func New() *Session {
	return &Session{}
}

// Identify starts a folio for the given identity. Any previous folio state is
// discarded.
func (s *Session) Identify(documentType, documentNumber, secondaryKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.identified = true
	s.documentType = strings.TrimSpace(documentType)
	s.documentNumber = strings.TrimSpace(documentNumber)
	s.secondaryKey = strings.TrimSpace(secondaryKey)
}

// SetNames records the demographic names found during reservation.
func (s *Session) SetNames(first, last string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstNames = first
	s.lastNames = last
}

// MarkBooked records a successful booking. The encounter number replaces the
// secondary key and the folio is locked until documents are filed.
func (s *Session) MarkBooked(encounterNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secondaryKey = encounterNumber
	s.encounterBooked = true
	s.folioLocked = true
	s.folioClosed = false
}

// MarkDocumentsUploaded records that at least one document was accepted.
// The flag is never reset for the lifetime of the folio.
func (s *Session) MarkDocumentsUploaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documentsUploaded = true
}

// SetObservation stores the free-text observation filed with every record.
func (s *Session) SetObservation(obs string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observation = obs
}

// Close marks the folio as fully filed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folioClosed = true
	s.folioLocked = false
}

// Clear destroys the folio, returning to the identification step.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// ClearIfClosed clears the folio only if it is still the closed one. It
// reports whether anything was cleared.
func (s *Session) ClearIfClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.identified || !s.folioClosed {
		return false
	}
	s.reset()
	return true
}

func (s *Session) reset() {
	s.identified = false
	s.documentType = ""
	s.documentNumber = ""
	s.secondaryKey = ""
	s.encounterBooked = false
	s.documentsUploaded = false
	s.folioLocked = false
	s.folioClosed = false
	s.observation = ""
	s.firstNames = ""
	s.lastNames = ""
}

func (s *Session) IsIdentified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identified
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state()
}

func (s *Session) state() State {
	switch {
	case !s.identified:
		return StateNotLoggedIn
	case s.folioClosed:
		return StateClosed
	case s.documentsUploaded:
		return StateDocumentsPending
	case s.encounterBooked:
		return StateEncounterBooked
	default:
		return StateIdentified
	}
}

func (s *Session) blocked() bool {
	return s.encounterBooked && !s.documentsUploaded
}

// CanNavigateBack is false while a booked encounter has no documents.
func (s *Session) CanNavigateBack() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.blocked()
}

// CanExitApplication is false while a booked encounter has no documents.
func (s *Session) CanExitApplication() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.blocked()
}

// Snapshot is an immutable copy of the Session for presentation and filing.
type Snapshot struct {
	State             State  `json:"state"`
	DocumentType      string `json:"document_type"`
	DocumentNumber    string `json:"document_number"`
	SecondaryKey      string `json:"secondary_key"`
	EncounterBooked   bool   `json:"encounter_booked"`
	DocumentsUploaded bool   `json:"documents_uploaded"`
	FolioLocked       bool   `json:"folio_locked"`
	FolioClosed       bool   `json:"folio_closed"`
	Observation       string `json:"observation"`
	FirstNames        string `json:"first_names,omitempty"`
	LastNames         string `json:"last_names,omitempty"`
	CanNavigateBack   bool   `json:"can_navigate_back"`
	CanExit           bool   `json:"can_exit"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:             s.state(),
		DocumentType:      s.documentType,
		DocumentNumber:    s.documentNumber,
		SecondaryKey:      s.secondaryKey,
		EncounterBooked:   s.encounterBooked,
		DocumentsUploaded: s.documentsUploaded,
		FolioLocked:       s.folioLocked,
		FolioClosed:       s.folioClosed,
		Observation:       s.observation,
		FirstNames:        s.firstNames,
		LastNames:         s.lastNames,
		CanNavigateBack:   !s.blocked(),
		CanExit:           !s.blocked(),
	}
}
