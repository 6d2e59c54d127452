package render

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stackpm/pkg/resolve"
)

// RootID is the node ID used for the manifest itself.
const RootID = "manifest"

// Options configures diagram generation.
type Options struct {
	// Root labels the manifest node. Defaults to RootID.
	Root string

	// Detailed adds the versions that lost a conflict to node labels.
	Detailed bool
}

// ToDOT converts a resolution result to Graphviz DOT.
//
// Edges declared by a version that was later replaced are dropped, and
// every edge points at the version finally chosen for its target. Packages
// that were involved in a conflict are drawn with a dashed outline.
func ToDOT(res *resolve.Result, opts Options) string {
	root := opts.Root
	if root == "" {
		root = RootID
	}
	lost := lostVersions(res)

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  %q [label=%q, shape=folder, fillcolor=lightblue];\n", RootID, root)
	for _, name := range res.Resolved.Names() {
		id := nodeID(name, res.Resolved[name])
		attrs := []string{fmt.Sprintf("label=%q", label(name, res.Resolved[name], lost[name], opts.Detailed))}
		if len(lost[name]) > 0 {
			attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightyellow")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", id, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range edges(res) {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e[0], e[1])
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeID(name, version string) string { return name + "@" + version }

func label(name, version string, lost []string, detailed bool) string {
	l := name + "\n" + version
	if detailed && len(lost) > 0 {
		l += "\n(not " + strings.Join(lost, ", ") + ")"
	}
	return l
}

// edges returns the deduplicated, sorted [from, to] pairs that survive in
// the final resolution.
func edges(res *resolve.Result) [][2]string {
	seen := make(map[[2]string]bool)
	var out [][2]string
	for _, e := range res.Edges {
		from := RootID
		if e.From != "" {
			name, version, ok := splitID(e.From)
			if !ok || res.Resolved[name] != version {
				continue
			}
			from = e.From
		}
		version, ok := res.Resolved[e.To.Name]
		if !ok {
			continue
		}
		pair := [2]string{from, nodeID(e.To.Name, version)}
		if pair[0] == pair[1] || seen[pair] {
			continue
		}
		seen[pair] = true
		out = append(out, pair)
	}
	slices.SortFunc(out, func(a, b [2]string) int {
		if c := strings.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return strings.Compare(a[1], b[1])
	})
	return out
}

// splitID splits "name@version", keeping a scope's leading "@".
func splitID(id string) (name, version string, ok bool) {
	i := strings.LastIndex(id, "@")
	if i <= 0 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

func lostVersions(res *resolve.Result) map[string][]string {
	out := make(map[string][]string)
	for _, c := range res.Conflicts {
		for _, v := range []string{c.Existing, c.Proposed} {
			if v != c.Chosen && v != res.Resolved[c.Name] && !slices.Contains(out[c.Name], v) {
				out[c.Name] = append(out[c.Name], v)
			}
		}
	}
	for name := range out {
		slices.Sort(out[name])
	}
	return out
}
