package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/atomantic/SparseTree-sub004/internal/graph"
)

// NameFunc resolves a person ID to a display name. Unresolvable IDs
// should be returned verbatim.
type NameFunc func(id string) string

// RenderSparseTree renders a sparse tree with branch glyphs, one node
// per line. The root carries the root icon, every other node the
// favorite icon. Annotations show generation from root, parental line,
// and how many intermediate ancestors the edge elides. styled toggles
// color; pass false for non-TTY output.
func RenderSparseTree(root *graph.SparseNode, name NameFunc, styled bool) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	writeNode(&b, root, name, styled, "", true, true)
	return b.String()
}

// frame is one pending node plus the prefix its line starts with.
type frame struct {
	node   *graph.SparseNode
	prefix string
	isLast bool
	isRoot bool
}

func writeNode(b *strings.Builder, root *graph.SparseNode, name NameFunc, styled bool, prefix string, isLast, isRoot bool) {
	// Depth-first with an explicit stack; children push in reverse so
	// they pop in declaration order.
	stack := []frame{{node: root, prefix: prefix, isLast: isLast, isRoot: isRoot}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		b.WriteString(renderLine(f, name, styled))
		b.WriteByte('\n')

		childPrefix := f.prefix
		if !f.isRoot {
			if f.isLast {
				childPrefix += TreeBlank
			} else {
				childPrefix += TreePipe
			}
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				node:   f.node.Children[i],
				prefix: childPrefix,
				isLast: i == len(f.node.Children)-1,
			})
		}
	}
}

func renderLine(f frame, name NameFunc, styled bool) string {
	var line strings.Builder
	line.WriteString(f.prefix)
	if !f.isRoot {
		if f.isLast {
			line.WriteString(TreeLast)
		} else {
			line.WriteString(TreeBranch)
		}
	}

	icon := IconFav
	if f.isRoot {
		icon = IconRoot
	}
	label := fmt.Sprintf("%s %s", icon, name(f.node.PersonID))
	if styled && f.isRoot {
		label = AccentStyle.Bold(true).Render(label)
	}
	line.WriteString(label)

	if note := annotate(f.node, f.isRoot, styled); note != "" {
		line.WriteString(" ")
		line.WriteString(note)
	}
	return line.String()
}

func annotate(n *graph.SparseNode, isRoot, styled bool) string {
	if isRoot {
		return maybeMuted("(root)", styled)
	}
	parts := []string{fmt.Sprintf("G%d", n.GenerationFromRoot)}
	switch n.LineageFromParent {
	case graph.LineagePaternal:
		parts = append(parts, maybeStyle("paternal", PaternalStyle, styled))
	case graph.LineageMaternal:
		parts = append(parts, maybeStyle("maternal", MaternalStyle, styled))
	}
	if n.GenerationsSkipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", n.GenerationsSkipped))
	}
	return maybeMuted("(", styled) + strings.Join(parts, maybeMuted(", ", styled)) + maybeMuted(")", styled)
}

func maybeMuted(s string, styled bool) string {
	if !styled {
		return s
	}
	return MutedStyle.Render(s)
}

func maybeStyle(s string, style lipgloss.Style, styled bool) string {
	if !styled {
		return s
	}
	return style.Render(s)
}
