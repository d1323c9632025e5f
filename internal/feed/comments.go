package feed

import "github.com/dmitrijs2005/socialsync/internal/models"

// ThreadedComment is a comment placed in its thread.
type ThreadedComment struct {
	models.Comment
	Depth int
}

// BuildCommentTree orders comments parent first, depth first, keeping the
// input order among siblings. Comments whose parent is missing become roots.
// It runs in linear time.
func BuildCommentTree(comments []models.Comment) []ThreadedComment {
	byID := make(map[string]bool, len(comments))
	for _, c := range comments {
		byID[c.ID] = true
	}

	children := make(map[string][]int, len(comments))
	var roots []int
	for i, c := range comments {
		if c.ParentID == "" || c.ParentID == c.ID || !byID[c.ParentID] {
			roots = append(roots, i)
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], i)
	}

	type frame struct{ idx, depth int }
	out := make([]ThreadedComment, 0, len(comments))
	seen := make(map[string]bool, len(comments))
	var stack []frame
	walk := func(root int) {
		stack = append(stack[:0], frame{root, 0})
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			c := comments[f.idx]
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, ThreadedComment{Comment: c, Depth: f.depth})

			kids := children[c.ID]
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{kids[i], f.depth + 1})
			}
		}
	}
	for _, i := range roots {
		walk(i)
	}
	// Reply cycles have no root; list them from their first member.
	for i, c := range comments {
		if !seen[c.ID] {
			walk(i)
		}
	}
	return out
}
