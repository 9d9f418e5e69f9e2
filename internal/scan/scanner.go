package scan

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/debug"
	"github.com/alanz/org-node/internal/types"
)

// The scanner is a single-pass, line-oriented extractor. It never builds a
// document tree: headings, drawers and planning lines are recognized by
// line-start patterns, and everything else is treated as body text.

var (
	// Fast-reject marker. Property drawer keys are case-insensitive in org.
	idMarkerRe = regexp.MustCompile(`(?i):id:`)

	keywordRe     = regexp.MustCompile(`(?i)^#\+(title|filetags|todo|seq_todo|typ_todo):[ \t]*(.*)$`)
	drawerStartRe = regexp.MustCompile(`(?i)^[ \t]*:properties:[ \t]*$`)
	drawerEndRe   = regexp.MustCompile(`(?i)^[ \t]*:end:[ \t]*$`)
	backlinksRe   = regexp.MustCompile(`(?i)^[ \t]*:backlinks:[ \t]*$`)
	propLineRe    = regexp.MustCompile(`^[ \t]*:([^:\s]+?)\+?:[ \t]*(.*)$`)
	planningRe    = regexp.MustCompile(`^[ \t]*(?:SCHEDULED|DEADLINE|CLOSED):`)
	planningItem  = regexp.MustCompile(`(SCHEDULED|DEADLINE|CLOSED):[ \t]*(<[^>\n]*>|\[[^\]\n]*\])?`)
	priorityRe    = regexp.MustCompile(`^\[#([A-Za-z0-9])\][ \t]*`)
	headTagsRe    = regexp.MustCompile(`[ \t]+(:(?:[\pL\pN_@#%]+:)+)[ \t]*$`)
	commentRe     = regexp.MustCompile(`^[ \t]*#(?: |$)`)
)

// ScanFile scans one file and reports a FileOutcome. It never returns an
// error: unreadable, symlinked, wrongly suffixed or id-less files come back
// as FileMissing, malformed ones as FileProblem.
func ScanFile(path string, cfg *config.ScanConfig) types.FileOutcome {
	missing := func(reason string) types.FileOutcome {
		debug.LogScan("missing %s: %s\n", path, reason)
		return types.FileOutcome{Path: path, Status: types.FileMissing, Reason: reason}
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return missing("unreadable")
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return missing("symlink")
	}
	if !fi.Mode().IsRegular() {
		return missing("not a regular file")
	}
	if !hasSuffix(path, cfg.Suffixes) {
		return missing("wrong suffix")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return missing("unreadable")
	}

	start := time.Now()
	out := ScanBuffer(path, data, cfg)
	if out.Status == types.FileScanned {
		out.Info = types.FileInfo{
			Path:    path,
			MTime:   fi.ModTime(),
			Elapsed: time.Since(start),
			Hash:    xxhash.Sum64(data),
		}
	}
	return out
}

// ScanBuffer scans raw file content. Split out from ScanFile so the parsing
// pipeline can be exercised without touching the filesystem.
func ScanBuffer(path string, data []byte, cfg *config.ScanConfig) types.FileOutcome {
	if !idMarkerRe.Match(data) {
		return types.FileOutcome{Path: path, Status: types.FileMissing, Reason: "no id marker"}
	}

	s := &fileScan{
		path:        path,
		cfg:         cfg,
		ls:          newLineScanner(data),
		fileNodeIdx: -1,
		vocab:       defaultVocab(cfg),
	}

	if err := s.run(); err != nil {
		prob := &types.Problem{
			File:    path,
			Message: err.Error(),
			FoundAt: time.Now(),
		}
		if sp, ok := err.(*scanProblem); ok {
			prob.Pos = sp.pos
		}
		debug.LogScan("problem in %s: %s\n", path, prob.Message)
		return types.FileOutcome{Path: path, Status: types.FileProblem, Problem: prob}
	}

	s.finishFileNode()
	return types.FileOutcome{
		Path:     path,
		Status:   types.FileScanned,
		Nodes:    s.nodes,
		Links:    s.links,
		RefTypes: s.refTypes,
	}
}

// scanProblem is a recoverable per-file failure with a position.
type scanProblem struct {
	pos int
	msg string
}

func (p *scanProblem) Error() string { return p.msg }

// headingFrame is one entry of the outline-path stack.
type headingFrame struct {
	level int
	title string
	tags  []string
	id    types.NodeID // non-empty when this heading introduced a node
}

type fileScan struct {
	path string
	cfg  *config.ScanConfig
	ls   *lineScanner

	// one-line pushback over the line scanner
	cur    []byte
	curPos int
	curOk  bool
	pushed bool

	stack      []headingFrame
	vocab      []string // effective todo vocabulary
	vocabReset bool

	fileTitle   string
	fileTags    []string
	fileProps   map[string]string
	fileNodeIdx int // index into nodes of the file-level node, -1 if none

	nodes    []types.Node
	links    []types.Link
	refTypes []types.RefType
}

func (s *fileScan) next() bool {
	if s.pushed {
		s.pushed = false
		return s.curOk
	}
	s.curOk = s.ls.Scan()
	if s.curOk {
		s.cur = s.ls.Bytes()
		s.curPos = s.ls.Offset()
	}
	return s.curOk
}

func (s *fileScan) pushback() {
	s.pushed = true
}

func (s *fileScan) run() error {
	seenHeading := false

	for s.next() {
		line := string(s.cur)
		pos := s.curPos

		if lvl := headingLevel(line); lvl > 0 {
			seenHeading = true
			if err := s.handleHeading(line, pos, lvl); err != nil {
				return err
			}
			continue
		}

		if !seenHeading {
			handled, err := s.handleFrontMatter(line, pos)
			if err != nil {
				return err
			}
			if handled {
				continue
			}
		}

		if err := s.handleBodyLine(line, pos); err != nil {
			return err
		}
	}

	return nil
}

// handleFrontMatter consumes file-level keyword lines and the file property
// drawer. Only reached while no heading has been seen yet.
func (s *fileScan) handleFrontMatter(line string, pos int) (bool, error) {
	if m := keywordRe.FindStringSubmatch(line); m != nil {
		value := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "title":
			s.fileTitle = value
		case "filetags":
			s.fileTags = splitColonTags(value)
		case "todo", "seq_todo", "typ_todo":
			s.addTodoLine(value)
		}
		return true, nil
	}

	if drawerStartRe.MatchString(line) {
		props, err := s.parseDrawer(pos)
		if err != nil {
			return false, err
		}
		s.fileProps = props
		if id := props["ID"]; id != "" {
			s.fileNodeIdx = len(s.nodes)
			s.nodes = append(s.nodes, types.Node{
				ID:         types.NodeID(id),
				File:       s.path,
				Pos:        0,
				Level:      0,
				Properties: props,
			})
		}
		return true, nil
	}

	return false, nil
}

// handleHeading parses one headline plus its optional planning line and
// property drawer, maintains the outline stack, and emits a node when the
// drawer carries an :ID:.
func (s *fileScan) handleHeading(line string, pos int, lvl int) error {
	todo, priority, title, tags := s.parseHeadline(line, lvl)

	// Pop entries at the same or deeper level before pushing; the survivors
	// are exactly this heading's ancestors.
	for len(s.stack) > 0 && s.stack[len(s.stack)-1].level >= lvl {
		s.stack = s.stack[:len(s.stack)-1]
	}

	var scheduled, deadline string
	var props map[string]string

	if s.next() {
		if planningRe.MatchString(string(s.cur)) {
			for _, m := range planningItem.FindAllStringSubmatch(string(s.cur), -1) {
				switch m[1] {
				case "SCHEDULED":
					scheduled = m[2]
				case "DEADLINE":
					deadline = m[2]
				}
			}
		} else {
			s.pushback()
		}
	}

	if s.next() {
		if drawerStartRe.MatchString(string(s.cur)) {
			parsed, err := s.parseDrawer(s.curPos)
			if err != nil {
				return err
			}
			props = parsed
		} else {
			s.pushback()
		}
	}

	var id types.NodeID
	if props != nil && props["ID"] != "" {
		id = types.NodeID(props["ID"])

		olp := make([]string, 0, len(s.stack))
		for _, f := range s.stack {
			olp = append(olp, f.title)
		}

		node := types.Node{
			ID:          id,
			Title:       title,
			File:        s.path,
			Pos:         pos,
			Level:       lvl,
			OutlinePath: olp,
			TagsLocal:   tags,
			TagsAll:     s.inheritedTags(tags),
			Todo:        todo,
			Priority:    priority,
			Scheduled:   scheduled,
			Deadline:    deadline,
			Properties:  props,
		}
		s.applyRefProps(&node, props)
		s.nodes = append(s.nodes, node)
	}

	s.stack = append(s.stack, headingFrame{level: lvl, title: title, tags: tags, id: id})

	// Links written into the headline itself belong to the node in scope
	// after the heading is processed.
	return s.extractLinks(line, pos, s.currentOrigin())
}

// handleBodyLine extracts links from ordinary content. Comment lines and the
// backlinks drawer are excluded from link extraction.
func (s *fileScan) handleBodyLine(line string, pos int) error {
	if commentRe.MatchString(line) {
		return nil
	}

	if backlinksRe.MatchString(line) {
		return s.skipDrawer(pos)
	}

	return s.extractLinks(line, pos, s.currentOrigin())
}

// parseDrawer consumes lines up to :END: and returns the key→value table.
// Keys are upper-cased; a duplicate key overwrites the previous value, so
// lookup sees the last occurrence.
func (s *fileScan) parseDrawer(startPos int) (map[string]string, error) {
	props := make(map[string]string)
	for s.next() {
		line := string(s.cur)
		if drawerEndRe.MatchString(line) {
			return props, nil
		}
		if headingLevel(line) > 0 {
			break
		}
		if m := propLineRe.FindStringSubmatch(line); m != nil {
			props[strings.ToUpper(m[1])] = strings.TrimSpace(m[2])
		}
	}
	return nil, &scanProblem{pos: startPos, msg: "unterminated property drawer"}
}

// skipDrawer consumes a non-property drawer body without extracting anything.
func (s *fileScan) skipDrawer(startPos int) error {
	for s.next() {
		line := string(s.cur)
		if drawerEndRe.MatchString(line) {
			return nil
		}
		if headingLevel(line) > 0 {
			break
		}
	}
	return &scanProblem{pos: startPos, msg: "unterminated drawer"}
}

// parseHeadline splits a headline into todo keyword, priority cookie, title
// and trailing tags. The todo keyword must belong to the file's effective
// vocabulary.
func (s *fileScan) parseHeadline(line string, lvl int) (todo, priority, title string, tags []string) {
	rest := strings.TrimSpace(line[lvl+1:])

	if m := headTagsRe.FindStringSubmatchIndex(rest); m != nil {
		tags = splitColonTags(rest[m[2]:m[3]])
		rest = strings.TrimRight(rest[:m[0]], " \t")
	}

	if word, after, found := strings.Cut(rest, " "); found || rest != "" {
		for _, kw := range s.vocab {
			if word == kw {
				todo = kw
				if found {
					rest = strings.TrimLeft(after, " \t")
				} else {
					rest = ""
				}
				break
			}
		}
	}

	if m := priorityRe.FindStringSubmatch(rest); m != nil {
		priority = m[1]
		rest = rest[len(m[0]):]
	}

	title = strings.TrimSpace(rest)
	return todo, priority, title, tags
}

// addTodoLine folds one #+todo: line into the file's vocabulary. The first
// such line replaces the default vocabulary; later ones accumulate.
func (s *fileScan) addTodoLine(value string) {
	if !s.vocabReset {
		s.vocab = nil
		s.vocabReset = true
	}
	for _, word := range strings.Fields(value) {
		if word == "|" {
			continue
		}
		// Strip fast-access selectors like TODO(t).
		if i := strings.IndexByte(word, '('); i > 0 {
			word = word[:i]
		}
		s.vocab = append(s.vocab, word)
	}
}

// inheritedTags computes TagsAll for a node: local tags plus ancestor and
// file tags, deduplicated, order preserved (local first).
func (s *fileScan) inheritedTags(local []string) []string {
	if !s.cfg.InheritTags {
		return local
	}

	seen := make(map[string]bool, len(local))
	all := make([]string, 0, len(local))
	add := func(tags []string) {
		for _, t := range tags {
			if !seen[t] {
				seen[t] = true
				all = append(all, t)
			}
		}
	}
	add(local)
	for i := len(s.stack) - 1; i >= 0; i-- {
		add(s.stack[i].tags)
	}
	add(s.fileTags)

	if len(all) == 0 {
		return nil
	}
	return all
}

// currentOrigin returns the id of the innermost node in scope, falling back
// to the file-level node. Empty when no node encloses this position.
func (s *fileScan) currentOrigin() types.NodeID {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].id != "" {
			return s.stack[i].id
		}
	}
	if s.fileNodeIdx >= 0 {
		return s.nodes[s.fileNodeIdx].ID
	}
	return ""
}

// applyRefProps parses ROAM_ALIASES and ROAM_REFS out of a node's drawer.
func (s *fileScan) applyRefProps(node *types.Node, props map[string]string) {
	if raw := props["ROAM_ALIASES"]; raw != "" {
		node.Aliases = splitQuoted(raw)
	}
	if raw := props["ROAM_REFS"]; raw != "" {
		refs, refTypes := parseRefs(raw)
		node.Refs = refs
		s.refTypes = append(s.refTypes, refTypes...)
	}
}

// finishFileNode patches the file-level node with front matter that may have
// appeared after its drawer (#+title and #+filetags commonly do).
func (s *fileScan) finishFileNode() {
	if s.fileNodeIdx < 0 {
		return
	}
	node := &s.nodes[s.fileNodeIdx]

	node.Title = s.fileTitle
	if node.Title == "" {
		node.Title = filepath.Base(s.path)
	}
	node.TagsLocal = s.fileTags
	if s.cfg.InheritTags {
		node.TagsAll = s.fileTags
	} else {
		node.TagsAll = nil
	}
	s.applyRefProps(node, s.fileProps)
}

func hasSuffix(path string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(path, suf) {
			return true
		}
	}
	return false
}

func headingLevel(line string) int {
	i := 0
	for i < len(line) && line[i] == '*' {
		i++
	}
	if i > 0 && i < len(line) && line[i] == ' ' {
		return i
	}
	return 0
}

// splitColonTags splits ":a:b:" (or "a:b") into its tag components.
func splitColonTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ":") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func defaultVocab(cfg *config.ScanConfig) []string {
	vocab := make([]string, 0, len(cfg.TodoKeywords)+len(cfg.TodoDoneKeywords))
	vocab = append(vocab, cfg.TodoKeywords...)
	vocab = append(vocab, cfg.TodoDoneKeywords...)
	return vocab
}
