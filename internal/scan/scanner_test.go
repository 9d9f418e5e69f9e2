package scan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/types"
)

func testScanConfig() *config.ScanConfig {
	return &config.ScanConfig{
		Suffixes:         []string{".org"},
		TodoKeywords:     []string{"TODO"},
		TodoDoneKeywords: []string{"DONE"},
		Encoding:         "utf-8",
		InheritTags:      true,
	}
}

func scanString(t *testing.T, content string) types.FileOutcome {
	t.Helper()
	return ScanBuffer("/corpus/a.org", []byte(content), testScanConfig())
}

func TestScanBuffer_HeadingNodeAndLink(t *testing.T) {
	content := "* Heading :tag1:\n" +
		":PROPERTIES:\n" +
		":ID: abc\n" +
		":END:\n" +
		"body [[id:xyz][Other]]\n"

	out := scanString(t, content)
	require.Equal(t, types.FileScanned, out.Status)
	require.Len(t, out.Nodes, 1)

	node := out.Nodes[0]
	assert.Equal(t, types.NodeID("abc"), node.ID)
	assert.Equal(t, "Heading", node.Title)
	assert.Equal(t, 1, node.Level)
	assert.Equal(t, 0, node.Pos)
	assert.Equal(t, []string{"tag1"}, node.TagsLocal)
	assert.Empty(t, node.OutlinePath)

	require.Len(t, out.Links, 1)
	link := out.Links[0]
	assert.Equal(t, types.NodeID("abc"), link.Origin)
	assert.Equal(t, "id", link.Type)
	assert.Equal(t, "xyz", link.Dest)
	assert.Equal(t, strings.Index(content, "[[id:"), link.Pos)
}

func TestScanBuffer_OutlinePaths(t *testing.T) {
	content := "* Top\n" +
		"** Middle\n" +
		"*** Deep\n" +
		":PROPERTIES:\n" +
		":ID: deep-id\n" +
		":END:\n" +
		"** Sibling\n" +
		":PROPERTIES:\n" +
		":ID: sib-id\n" +
		":END:\n"

	out := scanString(t, content)
	require.Equal(t, types.FileScanned, out.Status)
	require.Len(t, out.Nodes, 2)

	deep := out.Nodes[0]
	assert.Equal(t, types.NodeID("deep-id"), deep.ID)
	assert.Equal(t, 3, deep.Level)
	assert.Equal(t, []string{"Top", "Middle"}, deep.OutlinePath)

	// Sibling at level 2 pops Middle and Deep off the stack first.
	sib := out.Nodes[1]
	assert.Equal(t, types.NodeID("sib-id"), sib.ID)
	assert.Equal(t, 2, sib.Level)
	assert.Equal(t, []string{"Top"}, sib.OutlinePath)
}

func TestScanBuffer_FileNode(t *testing.T) {
	content := ":PROPERTIES:\n" +
		":ID: file-id\n" +
		":END:\n" +
		"#+title: My Document\n" +
		"#+filetags: :notes:ref:\n" +
		"\n" +
		"See [[id:other][there]].\n"

	out := scanString(t, content)
	require.Equal(t, types.FileScanned, out.Status)
	require.Len(t, out.Nodes, 1)

	node := out.Nodes[0]
	assert.Equal(t, types.NodeID("file-id"), node.ID)
	assert.Equal(t, 0, node.Level)
	assert.Equal(t, 0, node.Pos)
	// Title and tags come from keywords after the drawer.
	assert.Equal(t, "My Document", node.Title)
	assert.Equal(t, []string{"notes", "ref"}, node.TagsLocal)

	require.Len(t, out.Links, 1)
	assert.Equal(t, types.NodeID("file-id"), out.Links[0].Origin)
}

func TestScanBuffer_FileNodeFallbackTitle(t *testing.T) {
	content := ":PROPERTIES:\n:ID: file-id\n:END:\n"
	out := scanString(t, content)
	require.Equal(t, types.FileScanned, out.Status)
	require.Len(t, out.Nodes, 1)
	assert.Equal(t, "a.org", out.Nodes[0].Title)
}

func TestScanBuffer_TagInheritance(t *testing.T) {
	content := "#+filetags: :file:\n" +
		"* Parent :ptag:\n" +
		"** Child :ctag:\n" +
		":PROPERTIES:\n" +
		":ID: child-id\n" +
		":END:\n"

	out := scanString(t, content)
	require.Len(t, out.Nodes, 1)
	node := out.Nodes[0]
	assert.Equal(t, []string{"ctag"}, node.TagsLocal)
	assert.Equal(t, []string{"ctag", "ptag", "file"}, node.TagsAll)

	cfg := testScanConfig()
	cfg.InheritTags = false
	out = ScanBuffer("/corpus/a.org", []byte(content), cfg)
	require.Len(t, out.Nodes, 1)
	assert.Equal(t, []string{"ctag"}, out.Nodes[0].TagsAll)
}

func TestScanBuffer_HeadlineParts(t *testing.T) {
	content := "* TODO [#A] Write tests :work:urgent:\n" +
		"SCHEDULED: <2024-01-15 Mon> DEADLINE: <2024-02-01 Thu>\n" +
		":PROPERTIES:\n" +
		":ID: task-id\n" +
		":END:\n"

	out := scanString(t, content)
	require.Len(t, out.Nodes, 1)

	node := out.Nodes[0]
	assert.Equal(t, "TODO", node.Todo)
	assert.Equal(t, "A", node.Priority)
	assert.Equal(t, "Write tests", node.Title)
	assert.Equal(t, []string{"work", "urgent"}, node.TagsLocal)
	assert.Equal(t, "<2024-01-15 Mon>", node.Scheduled)
	assert.Equal(t, "<2024-02-01 Thu>", node.Deadline)
}

func TestScanBuffer_TodoVocabularyRedefined(t *testing.T) {
	content := "#+todo: NEXT(n) WAIT | CANCELLED\n" +
		"* NEXT One\n" +
		":PROPERTIES:\n:ID: one\n:END:\n" +
		"* TODO Two\n" +
		":PROPERTIES:\n:ID: two\n:END:\n"

	out := scanString(t, content)
	require.Len(t, out.Nodes, 2)

	assert.Equal(t, "NEXT", out.Nodes[0].Todo)
	assert.Equal(t, "One", out.Nodes[0].Title)

	// TODO is not in the redefined vocabulary, so it stays in the title.
	assert.Equal(t, "", out.Nodes[1].Todo)
	assert.Equal(t, "TODO Two", out.Nodes[1].Title)
}

func TestScanBuffer_DuplicatePropertyLastWins(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n" +
		":ID: dup-id\n" +
		":CUSTOM: first\n" +
		":custom: second\n" +
		":END:\n"

	out := scanString(t, content)
	require.Len(t, out.Nodes, 1)
	assert.Equal(t, "second", out.Nodes[0].Properties["CUSTOM"])
}

func TestScanBuffer_AliasesAndRefs(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n" +
		":ID: ref-id\n" +
		`:ROAM_ALIASES: "The Alias" short` + "\n" +
		`:ROAM_REFS: [[https://example.com/a b]] @cite1` + "\n" +
		":END:\n"

	out := scanString(t, content)
	require.Len(t, out.Nodes, 1)

	node := out.Nodes[0]
	assert.Equal(t, []string{"The Alias", "short"}, node.Aliases)
	assert.Equal(t, []string{"//example.com/a b", "@cite1"}, node.Refs)
	require.Len(t, out.RefTypes, 1)
	assert.Equal(t, types.RefType{Ref: "//example.com/a b", Type: "https"}, out.RefTypes[0])
}

func TestScanBuffer_Citations(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n:ID: cite-org\n:END:\n" +
		"See [cite/t:@key1; &key2] for details.\n"

	out := scanString(t, content)
	require.Equal(t, types.FileScanned, out.Status)
	require.Len(t, out.Links, 2)

	assert.Equal(t, "@key1", out.Links[0].Dest)
	assert.Equal(t, "", out.Links[0].Type)
	// The & sigil is normalized to @.
	assert.Equal(t, "@key2", out.Links[1].Dest)
}

func TestScanBuffer_PercentEscapedLink(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n:ID: esc\n:END:\n" +
		"[[file:notes%20dir/a.org][notes]]\n"

	out := scanString(t, content)
	require.Len(t, out.Links, 1)
	assert.Equal(t, "file", out.Links[0].Type)
	assert.Equal(t, "notes dir/a.org", out.Links[0].Dest)
}

func TestScanBuffer_BareURI(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n:ID: bare\n:END:\n" +
		"read https://example.org/page.\n"

	out := scanString(t, content)
	require.Len(t, out.Links, 1)
	assert.Equal(t, "https", out.Links[0].Type)
	// Trailing punctuation is not part of the destination.
	assert.Equal(t, "//example.org/page", out.Links[0].Dest)
}

func TestScanBuffer_CommentAndBacklinksExcluded(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n:ID: excl\n:END:\n" +
		"# commented [[id:c1][c]]\n" +
		":BACKLINKS:\n" +
		"[[id:b1][back]]\n" +
		":END:\n" +
		"[[id:real][kept]]\n"

	out := scanString(t, content)
	require.Equal(t, types.FileScanned, out.Status)
	require.Len(t, out.Links, 1)
	assert.Equal(t, "real", out.Links[0].Dest)
}

func TestScanBuffer_LinkBeforeAnyNode(t *testing.T) {
	// The file carries an id marker but no node encloses the link.
	content := "some text :id: mention\n" +
		"[[id:nowhere][dangling]]\n"

	out := scanString(t, content)
	require.Equal(t, types.FileScanned, out.Status)
	assert.Empty(t, out.Nodes)
	assert.Empty(t, out.Links)
}

func TestScanBuffer_NoIDMarker(t *testing.T) {
	out := scanString(t, "* Heading\njust text\n")
	assert.Equal(t, types.FileMissing, out.Status)
	assert.Equal(t, "no id marker", out.Reason)
}

func TestScanBuffer_UnterminatedDrawer(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n" +
		":ID: broken\n"

	out := scanString(t, content)
	require.Equal(t, types.FileProblem, out.Status)
	require.NotNil(t, out.Problem)
	assert.Contains(t, out.Problem.Message, "unterminated property drawer")
	assert.Equal(t, strings.Index(content, ":PROPERTIES:"), out.Problem.Pos)
	assert.Empty(t, out.Nodes)
}

func TestScanBuffer_DrawerCutByHeading(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n" +
		":ID: broken\n" +
		"* Next heading\n" +
		":PROPERTIES:\n:ID: ok\n:END:\n"

	out := scanString(t, content)
	assert.Equal(t, types.FileProblem, out.Status)
}

func TestScanBuffer_UnterminatedCitation(t *testing.T) {
	content := "* H\n" +
		":PROPERTIES:\n:ID: cid\n:END:\n" +
		"broken [cite:@key\n"

	out := scanString(t, content)
	require.Equal(t, types.FileProblem, out.Status)
	require.NotNil(t, out.Problem)
	assert.Contains(t, out.Problem.Message, "unterminated citation")
}

func TestScanBuffer_Idempotent(t *testing.T) {
	content := "#+title: Doc\n" +
		"* TODO [#B] Task :t1:\n" +
		":PROPERTIES:\n:ID: task\n:ROAM_REFS: @cite9\n:END:\n" +
		"body [[id:xyz][link]] and [cite:@k]\n" +
		"** Sub\n" +
		":PROPERTIES:\n:ID: sub\n:END:\n"

	first := scanString(t, content)
	second := scanString(t, content)

	require.Equal(t, types.FileScanned, first.Status)
	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Links, second.Links)
	assert.Equal(t, first.RefTypes, second.RefTypes)
}

func TestScanFile_MissingTaxonomy(t *testing.T) {
	dir := t.TempDir()
	cfg := testScanConfig()

	good := filepath.Join(dir, "good.org")
	require.NoError(t, os.WriteFile(good, []byte("* H\n:PROPERTIES:\n:ID: g\n:END:\n"), 0o644))

	wrongSuffix := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(wrongSuffix, []byte(":ID: x\n"), 0o644))

	linked := filepath.Join(dir, "link.org")
	require.NoError(t, os.Symlink(good, linked))

	tests := []struct {
		name   string
		path   string
		status types.FileStatus
		reason string
	}{
		{"scanned", good, types.FileScanned, ""},
		{"deleted", filepath.Join(dir, "gone.org"), types.FileMissing, "unreadable"},
		{"wrong suffix", wrongSuffix, types.FileMissing, "wrong suffix"},
		{"symlink", linked, types.FileMissing, "symlink"},
		{"directory", dir, types.FileMissing, "not a regular file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ScanFile(tt.path, cfg)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestScanFile_FileInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.org")
	require.NoError(t, os.WriteFile(path, []byte("* H\n:PROPERTIES:\n:ID: a\n:END:\n"), 0o644))

	out := ScanFile(path, testScanConfig())
	require.Equal(t, types.FileScanned, out.Status)
	assert.Equal(t, path, out.Info.Path)
	assert.False(t, out.Info.MTime.IsZero())
	assert.NotZero(t, out.Info.Hash)

	// Same content hashes the same.
	again := ScanFile(path, testScanConfig())
	assert.Equal(t, out.Info.Hash, again.Info.Hash)
}
