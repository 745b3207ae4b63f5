package filing

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/folio/internal/domain/destination"
	"github.com/ehr/folio/internal/domain/documents"
	"github.com/ehr/folio/internal/domain/session"
)

// RecordKey is the composite key of an imapronq record.
type RecordKey struct {
	TypeCode       int    `json:"s1CODIMA"`
	Sequence       int    `json:"imacnsreg"`
	DocumentNumber string `json:"hisckey"`
	DocumentType   string `json:"histipdoc"`
	SecondaryKey   int    `json:"hiscsec"`
}

// Record is the payload submitted to imapronq/create for one document.
type Record struct {
	Key              RecordKey `json:"imapronqpk"`
	RegistrationType string    `json:"imatipreg"`
	RegisteringUser  string    `json:"imausureg"`
	DestinationPath  string    `json:"imarutpro"`
	CapturedAt       string    `json:"imafechor"`
	Observation      string    `json:"imaobs"`
	ProcedureCode    string    `json:"codpro"`
}

// RecordDefaults carries the values filed with every record that do not come
// from the session or the document.
type RecordDefaults struct {
	RegistrationType string
	ProcedureCode    string
	Operator         string
}

const captureLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatCaptureTime renders the capture timestamp filed as imafechor.
func FormatCaptureTime(t time.Time) string {
	return t.UTC().Format(captureLayout)
}

// Extension returns the lower-case extension of name without the dot, or
// "pdf" when there is none.
func Extension(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "pdf"
	}
	return ext
}

// FileName builds {code}-{hisckey}-{histipdoc}-{hiscsec}-{seq}.{ext}.
func FileName(code string, snap session.Snapshot, seq int, sourceName string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%d.%s",
		code, snap.DocumentNumber, snap.DocumentType, snap.SecondaryKey, seq, Extension(sourceName))
}

// BuildRecord assembles the record for a document whose sequence number,
// directory and file name have been computed.
func BuildRecord(doc documents.Document, snap session.Snapshot, def RecordDefaults, capturedAt time.Time) (Record, error) {
	code, err := strconv.Atoi(doc.TypeCode)
	if err != nil {
		return Record{}, fmt.Errorf("type code %q is not numeric", doc.TypeCode)
	}
	sec, err := strconv.Atoi(snap.SecondaryKey)
	if err != nil {
		return Record{}, fmt.Errorf("secondary key %q is not numeric", snap.SecondaryKey)
	}
	return Record{
		Key: RecordKey{
			TypeCode:       code,
			Sequence:       doc.SequenceNumber,
			DocumentNumber: snap.DocumentNumber,
			DocumentType:   snap.DocumentType,
			SecondaryKey:   sec,
		},
		RegistrationType: def.RegistrationType,
		RegisteringUser:  def.Operator,
		DestinationPath:  destination.JoinUNC(doc.DestinationDir, doc.FileName),
		CapturedAt:       FormatCaptureTime(capturedAt),
		Observation:      snap.Observation,
		ProcedureCode:    def.ProcedureCode,
	}, nil
}
