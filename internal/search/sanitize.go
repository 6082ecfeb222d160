package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLikeTerms bounds the substring fallback.
const MaxLikeTerms = 5

var unsearchable = map[string]bool{
	"*": true, "**": true, "***": true,
	".": true, "..": true, "...": true,
	"?": true, "??": true, "???": true,
}

func isOperator(tok string) bool {
	switch tok {
	case "AND", "OR", "NOT", "NEAR":
		return true
	}
	return false
}

// SanitizeMatch rewrites free text into a MATCH expression the full-text
// engine accepts. It returns "" when the text has nothing searchable. Plain
// word lists are OR-joined; text that already uses upper-case operators keeps
// its structure. Barewords carrying punctuation are phrase-quoted so that
// identifiers like POL-358 or guard.rs match as token sequences.
func SanitizeMatch(raw string) string {
	q := strings.TrimSpace(raw)
	if q == "" || unsearchable[q] {
		return ""
	}
	if !strings.ContainsFunc(q, isAlnum) {
		return ""
	}
	if isOperator(q) {
		return ""
	}
	if strings.HasPrefix(q, "*") {
		return SanitizeMatch(strings.TrimLeft(q, "*"))
	}
	for strings.HasSuffix(q, " *") {
		q = strings.TrimSpace(strings.TrimSuffix(q, " *"))
	}
	if q == "" {
		return ""
	}

	toks := splitQuoted(q)
	explicit := false
	sawTerm := false
	for _, tok := range toks {
		if isOperator(tok) {
			explicit = true
			continue
		}
		if strings.ContainsFunc(tok, isAlnum) {
			sawTerm = true
		}
	}
	if !sawTerm {
		return ""
	}

	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		if isOperator(tok) {
			out = append(out, tok)
			continue
		}
		if !strings.ContainsFunc(tok, isAlnum) {
			continue
		}
		out = append(out, quoteToken(tok))
	}
	if len(out) == 0 {
		return ""
	}
	if explicit {
		return strings.Join(out, " ")
	}
	return strings.Join(out, " OR ")
}

// splitQuoted splits on whitespace, keeping double-quoted phrases intact. An
// unterminated quote runs to the end of the input and is closed.
func splitQuoted(s string) []string {
	var toks []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			cur.WriteRune(r)
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		cur.WriteRune('"')
	}
	flush()
	return toks
}

// quoteToken leaves plain barewords and well-formed phrases alone and quotes
// anything else. A trailing * survives as a prefix marker.
func quoteToken(tok string) string {
	prefix := false
	if strings.HasSuffix(tok, "*") {
		tok = strings.TrimRight(tok, "*")
		prefix = true
	}
	if isPhrase(tok) {
		if prefix {
			return tok + "*"
		}
		return tok
	}
	if !isBareword(tok) {
		tok = `"` + strings.ReplaceAll(strings.Trim(tok, `"`), `"`, `""`) + `"`
	}
	if prefix {
		return tok + "*"
	}
	return tok
}

func isPhrase(tok string) bool {
	if len(tok) < 2 || tok[0] != '"' || tok[len(tok)-1] != '"' {
		return false
	}
	return !strings.Contains(tok[1:len(tok)-1], `"`)
}

func isBareword(tok string) bool {
	for _, r := range tok {
		if r == '_' || r > unicode.MaxASCII {
			continue
		}
		if !isAlnum(r) {
			return false
		}
	}
	return tok != ""
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// LikeTerms extracts up to max substring terms for the LIKE fallback. Terms
// keep dots, underscores, slashes and hyphens so paths and identifiers stay
// whole; operators and single characters are dropped.
func LikeTerms(raw string, max int) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		if isAlnum(r) {
			return false
		}
		switch r {
		case '.', '_', '/', '-':
			return false
		}
		return true
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 || isOperator(strings.ToUpper(f)) || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) >= max {
			break
		}
	}
	return out
}

// LikeEscape escapes LIKE wildcards for use with ESCAPE '\'.
func LikeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
