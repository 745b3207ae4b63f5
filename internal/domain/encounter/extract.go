package encounter

import (
	"regexp"

	"github.com/ehr/folio/internal/platform/payload"
)

var (
	firstNameKeys     = []string{"mpnom1", "mpnom2"}
	fullFirstNameKeys = []string{"mpnomc"}
	lastNameKeys      = []string{"mpape1", "mpape2"}

	admissionKeys = []string{
		"ingresosresponse", "ingresosResponse", "ingresoResponse", "ingreso_response",
		"ingreso", "INGRESO", "idIngreso", "idingreso", "ingresoId", "ingresoid",
	}

	encounterKeys = []string{"hiscnum", "HISCNUM", "hiscNum", "hisc_num"}
)

var encounterPattern = regexp.MustCompile(`(?i)hiscnum\s*["']?\s*[:=]\s*["']?(\d+)`)

// ExtractNames reads first and last names from a demographic payload.
func ExtractNames(v payload.Value) (first, last string) {
	rec := v.First()
	first = rec.JoinFields(firstNameKeys...)
	if first == "" {
		first, _ = rec.Field(fullFirstNameKeys...)
	}
	last = rec.JoinFields(lastNameKeys...)
	return first, last
}

// ExtractAdmissionID reads the admission response id. A scalar payload is the
// id itself; a record is searched by key and then by its sole scalar member.
func ExtractAdmissionID(v payload.Value) (string, bool) {
	rec := v.First()
	switch rec.Kind() {
	case payload.Scalar:
		s := rec.Text()
		return s, s != ""
	case payload.Record:
		if id, ok := rec.Field(admissionKeys...); ok {
			return id, true
		}
		return rec.SoleScalar()
	default:
		return "", false
	}
}

// ExtractEncounterNumber reads the booked encounter number, falling back to a
// pattern scan of the raw body.
func ExtractEncounterNumber(v payload.Value, raw []byte) (string, bool) {
	if n, ok := v.First().Field(encounterKeys...); ok {
		return n, true
	}
	if m := encounterPattern.FindSubmatch(raw); m != nil {
		return string(m[1]), true
	}
	return "", false
}
