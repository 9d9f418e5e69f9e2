package types

import (
	"time"
)

// NodeID is the unique identifier of a node, corpus-wide.
type NodeID string

// Node is an id-bearing file or heading treated as an addressable unit.
// Level 0 means the file-level node; headings start at level 1.
type Node struct {
	ID          NodeID            `json:"id"`
	Title       string            `json:"title"`
	File        string            `json:"file"`
	Pos         int               `json:"pos"` // byte offset of the heading line (0 for file-level)
	Level       int               `json:"level"`
	OutlinePath []string          `json:"olp,omitempty"` // ancestor heading titles, outermost first
	TagsLocal   []string          `json:"tags_local,omitempty"`
	TagsAll     []string          `json:"tags_all,omitempty"` // local plus inherited
	Todo        string            `json:"todo,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	Scheduled   string            `json:"scheduled,omitempty"`
	Deadline    string            `json:"deadline,omitempty"`
	Properties  map[string]string `json:"props,omitempty"` // keys upper-cased, last occurrence wins
	Aliases     []string          `json:"aliases,omitempty"`
	Refs        []string          `json:"refs,omitempty"`
}

// Link is a directed reference found in a node's heading line or body.
// Type is empty for citations; Dest is then a citekey including the @ sigil.
type Link struct {
	Origin NodeID `json:"origin"`
	Pos    int    `json:"pos"`
	Type   string `json:"type,omitempty"`
	Dest   string `json:"dest"`
}

// RefType records the URI scheme a ref was written with, for display.
// The ref value itself is stored without the scheme.
type RefType struct {
	Ref  string `json:"ref"`
	Type string `json:"type"`
}

// Problem is a recoverable per-file scan failure. The file's output is
// discarded but the batch continues.
type Problem struct {
	File    string    `json:"file"`
	Pos     int       `json:"pos"`
	Message string    `json:"message"`
	FoundAt time.Time `json:"found_at"`
}

// FileInfo carries per-file scan metadata. Elapsed drives the partitioner's
// load balancing; Hash lets callers detect unchanged content cheaply.
type FileInfo struct {
	Path    string        `json:"path"`
	MTime   time.Time     `json:"mtime"`
	Elapsed time.Duration `json:"elapsed"`
	Hash    uint64        `json:"hash"`
}

// FileStatus classifies the outcome of scanning one file.
type FileStatus int

const (
	// FileScanned means records were produced normally.
	FileScanned FileStatus = iota
	// FileMissing means the file is deleted, unreadable, a symlink, wrongly
	// suffixed, or carries no id marker. Missing files prune the index and
	// are not errors.
	FileMissing
	// FileProblem means the file was malformed in a way that invalidates its
	// output (unterminated drawer or citation bracket).
	FileProblem
)

// FileOutcome is the scanner's result for a single file.
type FileOutcome struct {
	Path     string
	Status   FileStatus
	Reason   string // set for FileMissing
	Problem  *Problem
	Info     FileInfo
	Nodes    []Node
	Links    []Link
	RefTypes []RefType
}

// ScanResult is one worker's merged output, reported once at exit.
type ScanResult struct {
	CompletedAt time.Time  `json:"completed_at"`
	Missing     []string   `json:"missing,omitempty"`
	Files       []FileInfo `json:"files,omitempty"`
	Nodes       []Node     `json:"nodes,omitempty"`
	RefTypes    []RefType  `json:"ref_types,omitempty"`
	Links       []Link     `json:"links,omitempty"`
	Problems    []Problem  `json:"problems,omitempty"`
}

// Add folds a single file outcome into the result.
func (r *ScanResult) Add(o FileOutcome) {
	switch o.Status {
	case FileMissing:
		r.Missing = append(r.Missing, o.Path)
	case FileProblem:
		if o.Problem != nil {
			r.Problems = append(r.Problems, *o.Problem)
		}
		// The failing file's partial output is discarded, and its previously
		// stored records must not survive either, so it is also pruned.
		r.Missing = append(r.Missing, o.Path)
	case FileScanned:
		r.Files = append(r.Files, o.Info)
		r.Nodes = append(r.Nodes, o.Nodes...)
		r.Links = append(r.Links, o.Links...)
		r.RefTypes = append(r.RefTypes, o.RefTypes...)
	}
}

// Merge combines another worker's result into this one. The earliest
// completion timestamp wins; it becomes the cycle's nominal end time.
func (r *ScanResult) Merge(other *ScanResult) {
	if r.CompletedAt.IsZero() || (!other.CompletedAt.IsZero() && other.CompletedAt.Before(r.CompletedAt)) {
		r.CompletedAt = other.CompletedAt
	}
	r.Missing = append(r.Missing, other.Missing...)
	r.Files = append(r.Files, other.Files...)
	r.Nodes = append(r.Nodes, other.Nodes...)
	r.RefTypes = append(r.RefTypes, other.RefTypes...)
	r.Links = append(r.Links, other.Links...)
	r.Problems = append(r.Problems, other.Problems...)
}
