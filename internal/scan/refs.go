package scan

import (
	"strings"

	"github.com/alanz/org-node/internal/types"
)

// parseRefs splits a ROAM_REFS property value into ref entries. Bracketed
// sub-links are extracted first (they may contain spaces); the remainder is
// split with shell-like quoting rules, and each token is classified as a
// citekey (@-prefixed) or a URI (scheme colon). URI schemes are recorded in
// a side table for display; the ref value keeps only the path portion.
func parseRefs(raw string) ([]string, []types.RefType) {
	var refs []string
	var refTypes []types.RefType

	record := func(token string) {
		if strings.HasPrefix(token, "@") && len(token) > 1 {
			refs = append(refs, token)
			return
		}
		if m := uriSchemeRe.FindStringSubmatch(token); m != nil {
			refs = append(refs, m[2])
			refTypes = append(refTypes, types.RefType{Ref: m[2], Type: m[1]})
		}
		// Anything else is neither a citekey nor a URI; ignored.
	}

	rest := raw
	for {
		m := bracketLinkRe.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		record(decodeEscapes(rest[m[2]:m[3]]))
		rest = rest[:m[0]] + " " + rest[m[1]:]
	}

	for _, token := range splitQuoted(rest) {
		record(token)
	}

	return refs, refTypes
}

// splitQuoted splits a string on whitespace with shell-like quoting: both
// quote characters group words, and a backslash escapes the next character
// outside single quotes.
func splitQuoted(s string) []string {
	var out []string
	var cur strings.Builder
	var quote byte
	escaped := false
	started := false

	flush := func() {
		if started {
			out = append(out, cur.String())
			cur.Reset()
			started = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case quote == '\'' && c != '\'':
			cur.WriteByte(c)
		case c == '\\':
			escaped = true
			started = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '"' || c == '\'':
			quote = c
			started = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
			started = true
		}
	}
	flush()

	return out
}
