// Package index holds the in-memory corpus index and the merge logic that
// folds scan results into it. All tables live behind one lock; readers take
// it shared, the two merge entry points take it exclusive.
package index

import (
	"sort"
	"sync"
	"time"

	"github.com/alanz/org-node/internal/debug"
	"github.com/alanz/org-node/internal/orgerrors"
	"github.com/alanz/org-node/internal/types"
)

// Collision records two nodes claiming the same title or alias. The newest
// claimant wins the lookup table; the loser is kept here for diagnostics.
type Collision struct {
	Name     string       `json:"name"`
	Winner   types.NodeID `json:"winner"`
	Loser    types.NodeID `json:"loser"`
	LoserPos int          `json:"loser_pos"`
	FoundAt  time.Time    `json:"found_at"`
}

// Store is the in-memory index. Zero value is not usable; call NewStore.
type Store struct {
	mu sync.RWMutex

	byID        map[types.NodeID]*types.Node
	byTitle     map[string]types.NodeID // titles and aliases, lowercased
	byRef       map[string][]types.NodeID
	linksByDest map[string][]types.Link
	files       map[string]types.FileInfo
	refTypes    map[string]string
	collisions  []Collision
	problems    []types.Problem
	lastScan    time.Time // nominal end time of the last merged cycle

	// onChange, when set, runs after every merge while the write lock is
	// still held, receiving the current id -> file path map. Hosts use it to
	// maintain their own location table; the store never persists one.
	onChange func(map[types.NodeID]string)
}

// NewStore returns an empty index.
func NewStore() *Store {
	return &Store{
		byID:        make(map[types.NodeID]*types.Node),
		byTitle:     make(map[string]types.NodeID),
		byRef:       make(map[string][]types.NodeID),
		linksByDest: make(map[string][]types.Link),
		files:       make(map[string]types.FileInfo),
		refTypes:    make(map[string]string),
	}
}

// SetChangeHook registers a callback invoked after each merge with the
// id -> file path map as it stands.
func (s *Store) SetChangeHook(fn func(map[types.NodeID]string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// locationsLocked snapshots the id -> file path map. Caller holds the lock.
func (s *Store) locationsLocked() map[types.NodeID]string {
	out := make(map[types.NodeID]string, len(s.byID))
	for id, n := range s.byID {
		out[id] = n.File
	}
	return out
}

// ApplyFullScan replaces the entire index with the result of a full-corpus
// scan. The outcome is independent of the order results were merged in:
// every table is rebuilt from scratch and title winners are decided by a
// deterministic rule, not arrival order.
func (s *Store) ApplyFullScan(res *types.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[types.NodeID]*types.Node, len(res.Nodes))
	s.byTitle = make(map[string]types.NodeID)
	s.byRef = make(map[string][]types.NodeID)
	s.linksByDest = make(map[string][]types.Link)
	s.files = make(map[string]types.FileInfo, len(res.Files))
	s.refTypes = make(map[string]string, len(res.RefTypes))
	s.collisions = nil
	s.problems = nil

	if !res.CompletedAt.IsZero() {
		s.lastScan = res.CompletedAt
	}
	err := s.insertLocked(res)
	debug.LogMerge("full scan applied: %d nodes, %d links, %d files, %d problems",
		len(s.byID), s.linkCountLocked(), len(s.files), len(s.problems))
	if s.onChange != nil {
		s.onChange(s.locationsLocked())
	}
	return err
}

// ApplyIncrementalScan folds a targeted scan into the existing index.
// Records belonging to missing files and to the rescanned files are pruned
// first, then the fresh records are inserted. Any node whose file was
// rescanned loses its old links and title entries even when the node itself
// vanished from the new content.
func (s *Store) ApplyIncrementalScan(res *types.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := make(map[string]bool, len(res.Missing)+len(res.Files))
	for _, f := range res.Missing {
		stale[f] = true
	}
	for _, info := range res.Files {
		stale[info.Path] = true
	}

	// Origin node ids living in stale files, collected before the nodes go.
	origins := make(map[types.NodeID]bool)
	for id, n := range s.byID {
		if stale[n.File] {
			origins[id] = true
		}
	}

	for id := range origins {
		delete(s.byID, id)
	}
	for name, id := range s.byTitle {
		if origins[id] {
			delete(s.byTitle, name)
		}
	}
	for ref, ids := range s.byRef {
		kept := ids[:0]
		for _, id := range ids {
			if !origins[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(s.byRef, ref)
		} else {
			s.byRef[ref] = kept
		}
	}
	// A ref's recorded scheme must not outlive its last holder.
	for ref := range s.refTypes {
		if _, ok := s.byRef[ref]; !ok {
			delete(s.refTypes, ref)
		}
	}
	for dest, links := range s.linksByDest {
		kept := links[:0]
		for _, l := range links {
			if !origins[l.Origin] {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(s.linksByDest, dest)
		} else {
			s.linksByDest[dest] = kept
		}
	}
	for f := range stale {
		delete(s.files, f)
	}
	kept := s.problems[:0]
	for _, p := range s.problems {
		if !stale[p.File] {
			kept = append(kept, p)
		}
	}
	s.problems = kept

	if !res.CompletedAt.IsZero() {
		s.lastScan = res.CompletedAt
	}
	err := s.insertLocked(res)
	debug.LogMerge("incremental scan applied: %d files rescanned, %d missing, index now %d nodes",
		len(res.Files), len(res.Missing), len(s.byID))
	if s.onChange != nil {
		s.onChange(s.locationsLocked())
	}
	return err
}

// insertLocked adds the result's records to the current tables. Caller
// holds the write lock.
func (s *Store) insertLocked(res *types.ScanResult) error {
	var errs []error

	for _, info := range res.Files {
		s.files[info.Path] = info
	}
	for _, rt := range res.RefTypes {
		s.refTypes[rt.Ref] = rt.Type
	}
	s.problems = append(s.problems, res.Problems...)

	// Nodes in a deterministic order so title-collision winners do not
	// depend on which worker's slice came first.
	nodes := append([]types.Node(nil), res.Nodes...)
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].File != nodes[j].File {
			return nodes[i].File < nodes[j].File
		}
		return nodes[i].Pos < nodes[j].Pos
	})

	for i := range nodes {
		n := nodes[i]
		s.byID[n.ID] = &n
		s.claimTitleLocked(n.Title, &n)
		for _, alias := range n.Aliases {
			s.claimTitleLocked(alias, &n)
		}
		for _, ref := range n.Refs {
			s.byRef[ref] = append(s.byRef[ref], n.ID)
		}
	}

	for _, l := range res.Links {
		if _, ok := s.byID[l.Origin]; !ok {
			errs = append(errs, orgerrors.NewConsistencyError(
				"links", string(l.Origin),
				"link origin is not a known node id"))
			continue
		}
		s.linksByDest[l.Dest] = append(s.linksByDest[l.Dest], l)
	}

	return orgerrors.NewMultiError(errs)
}

// claimTitleLocked installs a title or alias lookup entry, recording a
// collision when the name is already taken by a different node. The new
// claimant wins.
func (s *Store) claimTitleLocked(name string, n *types.Node) {
	if name == "" {
		return
	}
	key := titleKey(name)
	if prev, ok := s.byTitle[key]; ok && prev != n.ID {
		if old := s.byID[prev]; old != nil {
			s.collisions = append(s.collisions, Collision{
				Name:     name,
				Winner:   n.ID,
				Loser:    prev,
				LoserPos: old.Pos,
				FoundAt:  time.Now(),
			})
		}
	}
	s.byTitle[key] = n.ID
}

func (s *Store) linkCountLocked() int {
	total := 0
	for _, links := range s.linksByDest {
		total += len(links)
	}
	return total
}
