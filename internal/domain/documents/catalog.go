package documents

import (
	"regexp"
	"strconv"
)

// TypeCode is one entry of the closed document type catalog.
type TypeCode struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var catalog = []TypeCode{
	{"1", "RECORD DE ANESTESIA"},
	{"2", "RESULTADO ESTUDIO"},
	{"3", "CONSENTIMIENTO INFORMADO"},
	{"4", "REGISTRO REC. POST ANESTESIA"},
	{"5", "HOJA MEDICAMENTOS CIRUGIA"},
	{"6", "HOJA GASTO MAT OSTEOSINTESIS"},
	{"8", "TRASLADO DE AMBULANCIA"},
	{"9", "CONSENTIMIENTO DE ENFERMERIA"},
	{"10", "CONSENTIMIENTO DE ANESTESIA"},
	{"11", "CONSENTIMIENTO DE APOYO DIAG"},
	{"12", "ORDENES MEDICAS"},
	{"13", "EVOLUCION MEDICA"},
	{"14", "NOTAS DE ENFERMERIA"},
	{"15", "EGRESO DE PACIENTE (LV)"},
	{"16", "REPORTE ESTUDIO DE IMAGENES"},
	{"17", "RESERVAS DE COMPONENTES SANGUI"},
}

var catalogIndex = func() map[string]TypeCode {
	m := make(map[string]TypeCode, len(catalog))
	for _, tc := range catalog {
		m[tc.Code] = tc
	}
	return m
}()

// Catalog returns the type code catalog in display order.
func Catalog() []TypeCode {
	out := make([]TypeCode, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog entry for code.
func Lookup(code string) (TypeCode, bool) {
	tc, ok := catalogIndex[code]
	return tc, ok
}

var leadingCode = regexp.MustCompile(`^\s*(\d{1,3})`)

// NormalizeCode extracts the leading numeric code from free text or a picklist
// label such as "12 - ORDENES MEDICAS" and validates it against the catalog.
func NormalizeCode(raw string) (string, bool) {
	m := leadingCode.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	code := strconv.Itoa(n)
	if _, ok := catalogIndex[code]; !ok {
		return "", false
	}
	return code, true
}
