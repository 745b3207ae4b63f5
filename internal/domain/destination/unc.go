package destination

import (
	"strings"
	"unicode"
)

func isSepOrSpace(r rune) bool {
	return r == '\\' || unicode.IsSpace(r)
}

// NormalizeUNC returns the canonical UNC form of p: backslash separators,
// exactly two leading separators, no surrounding whitespace and no trailing
// separator. It is idempotent.
func NormalizeUNC(p string) string {
	s := strings.ReplaceAll(p, "/", `\`)
	s = strings.TrimLeftFunc(s, isSepOrSpace)
	s = strings.TrimRightFunc(s, isSepOrSpace)
	if s == "" {
		return ""
	}
	return `\\` + s
}

// JoinUNC appends name to dir with exactly one separator.
func JoinUNC(dir, name string) string {
	d := strings.TrimRightFunc(dir, func(r rune) bool { return r == '/' || isSepOrSpace(r) })
	n := strings.TrimLeftFunc(name, func(r rune) bool { return r == '/' || isSepOrSpace(r) })
	if d == "" {
		return n
	}
	return d + `\` + n
}
