package scan

import (
	"regexp"
	"strings"

	"github.com/alanz/org-node/internal/types"
)

// Link extraction uses one merged pattern pass for bracket links and bare
// typed URIs, followed by a citation sweep. Regions already consumed by an
// earlier pass are masked out so the later passes cannot re-match inside
// them.

var (
	bracketLinkRe = regexp.MustCompile(`\[\[([^\][]+)\](?:\[([^\][]*)\])?\]`)
	plainLinkRe   = regexp.MustCompile(`([A-Za-z][A-Za-z0-9+.-]+):([^\s<>\][]+)`)
	uriSchemeRe   = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9+.-]*):(.*)$`)
	citeBodyRe    = regexp.MustCompile(`\[cite[^:\]]*:([^\]]*)\]`)
	citeKeyRe     = regexp.MustCompile(`[@&]([\pL\pN_][^\s,;\]]*)`)
)

// extractLinks records every typed link and citation found on one line.
// origin may be empty (no node in scope yet); problems are still detected
// then, but nothing is recorded.
func (s *fileScan) extractLinks(line string, linePos int, origin types.NodeID) error {
	// Citations first: they share the single-bracket syntax with nothing
	// else, and an unterminated one poisons the file.
	masked := line
	for _, m := range citeBodyRe.FindAllStringSubmatchIndex(line, -1) {
		if origin != "" {
			body := line[m[2]:m[3]]
			for _, km := range citeKeyRe.FindAllStringSubmatchIndex(body, -1) {
				s.links = append(s.links, types.Link{
					Origin: origin,
					Pos:    linePos + m[2] + km[0],
					// Alternate & sigil normalized to canonical @.
					Dest: "@" + body[km[2]:km[3]],
				})
			}
		}
		masked = maskRegion(masked, m[0], m[1])
	}
	if i := strings.Index(masked, "[cite"); i >= 0 && !strings.Contains(masked[i:], "]") {
		return &scanProblem{pos: linePos + i, msg: "unterminated citation bracket"}
	}

	// Bracket links. The payload may itself be a typed URI containing
	// spaces, which the plain pattern could never match.
	for _, m := range bracketLinkRe.FindAllStringSubmatchIndex(masked, -1) {
		payload := decodeEscapes(masked[m[2]:m[3]])
		if um := uriSchemeRe.FindStringSubmatch(payload); um != nil && origin != "" {
			s.recordLink(origin, linePos+m[0], um[1], um[2])
		}
		masked = maskRegion(masked, m[0], m[1])
	}

	// Bare typed URIs in the remaining text.
	if origin != "" {
		for _, m := range plainLinkRe.FindAllStringSubmatchIndex(masked, -1) {
			dest := strings.TrimRight(masked[m[4]:m[5]], `.,;:!?'")`)
			if dest == "" {
				continue
			}
			s.recordLink(origin, linePos+m[0], masked[m[2]:m[3]], dest)
		}
	}

	return nil
}

// recordLink appends a typed link, honoring the configured link-type subset.
func (s *fileScan) recordLink(origin types.NodeID, pos int, linkType, dest string) {
	if len(s.cfg.LinkTypes) > 0 && !containsString(s.cfg.LinkTypes, linkType) {
		return
	}
	s.links = append(s.links, types.Link{
		Origin: origin,
		Pos:    pos,
		Type:   linkType,
		Dest:   dest,
	})
}

// maskRegion blanks out [from,to) so later passes skip it while byte
// offsets stay stable.
func maskRegion(s string, from, to int) string {
	return s[:from] + strings.Repeat(" ", to-from) + s[to:]
}

// decodeEscapes undoes the percent-escaping org applies to spaces in
// stored links.
func decodeEscapes(s string) string {
	return strings.ReplaceAll(s, "%20", " ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
