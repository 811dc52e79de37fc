package storage

import (
	"sort"

	"github.com/sposlearning/sposwiki/internal/auth"
	"github.com/sposlearning/sposwiki/internal/models"
	"github.com/sposlearning/sposwiki/internal/pathkey"
)

// TreeNode is one entry in the directory tree. A node with a nil Page is a
// pure folder label: either no page exists at that path or the viewer is
// not allowed to see it.
type TreeNode struct {
	Name     string
	Children map[string]*TreeNode
	Page     *models.PageSummary
}

func newTreeNode(name string) *TreeNode {
	return &TreeNode{Name: name, Children: map[string]*TreeNode{}}
}

// SortedChildren returns the node's children in lexicographic order by
// segment name.
func (n *TreeNode) SortedChildren() []*TreeNode {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	children := make([]*TreeNode, len(names))
	for i, name := range names {
		children[i] = n.Children[name]
	}
	return children
}

// Visible reports whether the viewer may see a page of the given access
// level. Admin pages require an authenticated viewer.
func Visible(level models.AccessLevel, viewer auth.Viewer) bool {
	if level == models.AccessAdmin {
		return viewer.IsAuthenticated()
	}
	return true
}

// BuildTree folds the flat page summaries into a directory tree rooted at
// an unnamed node. Every path segment gets a node; a summary is attached
// wherever a page exists at the accumulated prefix and the viewer may see
// it. Pages hidden from the viewer still contribute their intermediate
// folder nodes, so a public page under a hidden folder stays reachable.
func BuildTree(summaries []models.PageSummary, viewer auth.Viewer) *TreeNode {
	byPath := make(map[pathkey.Key]models.PageSummary, len(summaries))
	for _, s := range summaries {
		byPath[s.FullPath] = s
	}
	root := newTreeNode("")
	for _, s := range summaries {
		node := root
		var prefix pathkey.Key
		for _, segment := range s.FullPath.Segments() {
			prefix = pathkey.Join(prefix, segment)
			child, ok := node.Children[segment]
			if !ok {
				child = newTreeNode(segment)
				node.Children[segment] = child
			}
			if page, ok := byPath[prefix]; ok && child.Page == nil && Visible(page.AccessLevel, viewer) {
				attached := page
				child.Page = &attached
			}
			node = child
		}
	}
	return root
}
