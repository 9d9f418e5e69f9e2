package index

import (
	"sort"
	"strings"
	"time"

	"github.com/hbollon/go-edlib"

	"github.com/alanz/org-node/internal/types"
)

// Stats summarizes the index for status displays.
type Stats struct {
	Nodes      int `json:"nodes"`
	Files      int `json:"files"`
	Links      int `json:"links"`
	Titles     int `json:"titles"`
	Refs       int `json:"refs"`
	Problems   int `json:"problems"`
	Collisions int `json:"collisions"`
}

// TitleMatch is one candidate from a fuzzy title lookup.
type TitleMatch struct {
	Title string       `json:"title"`
	ID    types.NodeID `json:"id"`
	Score float32      `json:"score"`
}

// NodeByID returns a copy of the node with the given id.
func (s *Store) NodeByID(id types.NodeID) (types.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[id]
	if !ok {
		return types.Node{}, false
	}
	return *n, true
}

// IDByTitle resolves an exact title or alias, case-insensitively.
func (s *Store) IDByTitle(title string) (types.NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTitle[titleKey(title)]
	return id, ok
}

// ResolveTitleFuzzy ranks indexed titles and aliases against the query by
// Jaro-Winkler similarity and returns the top matches at or above minScore.
func (s *Store) ResolveTitleFuzzy(query string, limit int, minScore float32) []TitleMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := titleKey(query)
	var matches []TitleMatch
	for name, id := range s.byTitle {
		score := edlib.JaroWinklerSimilarity(q, name)
		if score < minScore {
			continue
		}
		title := name
		if n := s.byID[id]; n != nil && titleKey(n.Title) == name {
			title = n.Title
		}
		matches = append(matches, TitleMatch{Title: title, ID: id, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Title < matches[j].Title
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// NodesByRef returns the nodes that carry the given ref.
func (s *Store) NodesByRef(ref string) []types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Node
	for _, id := range s.byRef[ref] {
		if n, ok := s.byID[id]; ok {
			out = append(out, *n)
		}
	}
	return out
}

// LinksTo returns every link whose destination is the given id or ref,
// sorted by origin file then position.
func (s *Store) LinksTo(dest string) []types.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := append([]types.Link(nil), s.linksByDest[dest]...)
	sort.Slice(links, func(i, j int) bool {
		if links[i].Origin != links[j].Origin {
			return links[i].Origin < links[j].Origin
		}
		return links[i].Pos < links[j].Pos
	})
	return links
}

// Files returns the tracked file table as a sorted slice.
func (s *Store) Files() []types.FileInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// FileInfo returns the tracked record for one path.
func (s *Store) FileInfo(path string) (types.FileInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.files[path]
	return info, ok
}

// ElapsedHistory returns per-file scan durations for the partitioner.
func (s *Store) ElapsedHistory() map[string]time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Duration, len(s.files))
	for path, info := range s.files {
		out[path] = info.Elapsed
	}
	return out
}

// LastScan returns the nominal end time of the most recently merged cycle:
// the earliest worker completion timestamp of that cycle. Zero before the
// first merge.
func (s *Store) LastScan() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScan
}

// RefType returns the recorded URI scheme for a ref, if any.
func (s *Store) RefType(ref string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.refTypes[ref]
	return t, ok
}

// Problems returns the scan problems currently on record.
func (s *Store) Problems() []types.Problem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Problem(nil), s.problems...)
}

// Collisions returns the recorded title collisions.
func (s *Store) Collisions() []Collision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Collision(nil), s.collisions...)
}

// Stats returns table sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Nodes:      len(s.byID),
		Files:      len(s.files),
		Links:      s.linkCountLocked(),
		Titles:     len(s.byTitle),
		Refs:       len(s.byRef),
		Problems:   len(s.problems),
		Collisions: len(s.collisions),
	}
}

// titleKey normalizes a title or alias for lookup.
func titleKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
