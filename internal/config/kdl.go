package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/alanz/org-node/internal/orgerrors"
)

// ConfigFileName is the KDL configuration file looked up in the user's home
// directory and in the corpus root.
const ConfigFileName = ".orgnode.kdl"

// applyKDLFile overlays the settings from path onto cfg. A missing file is
// not an error; a malformed one is.
func applyKDLFile(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return orgerrors.NewConfigError("file", path, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "root":
			if s, ok := firstStringArg(n); ok {
				cfg.Root = s
			}
		case "scan":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "suffixes":
					if vals := collectStringArgs(cn); len(vals) > 0 {
						cfg.Scan.Suffixes = vals
					}
				case "exclude":
					cfg.Scan.ExcludeGlobs = append(cfg.Scan.ExcludeGlobs, collectStringArgs(cn)...)
				case "todo_keywords":
					if vals := collectStringArgs(cn); len(vals) > 0 {
						cfg.Scan.TodoKeywords = vals
					}
				case "todo_done_keywords":
					if vals := collectStringArgs(cn); len(vals) > 0 {
						cfg.Scan.TodoDoneKeywords = vals
					}
				case "encoding":
					if s, ok := firstStringArg(cn); ok {
						cfg.Scan.Encoding = s
					}
				case "link_types":
					cfg.Scan.LinkTypes = collectStringArgs(cn)
				case "inherit_tags":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Scan.InheritTags = b
					}
				}
			}
		case "pool":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pool.Workers = v
					}
				case "inline":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Pool.Inline = b
					}
				case "scan_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pool.ScanTimeout = time.Duration(v) * time.Second
					}
				case "retry_interval_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pool.RetryInterval = time.Duration(v) * time.Millisecond
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.Enabled = b
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				}
			}
		case "exclude":
			cfg.Scan.ExcludeGlobs = append(cfg.Scan.ExcludeGlobs, collectStringArgs(n)...)
		}
	}

	return nil
}

// Helper functions leveraging the kdl-go document model.
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block format: exclude { "pattern"; "other" } — each child node's name
	// is the string value.
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}
