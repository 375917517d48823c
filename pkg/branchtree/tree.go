package branchtree

import (
	"fmt"

	"vesselstenosis/internal/models"
)

// Tree is an arena of branches. Parent and child relations are stored as
// indices into Branches.
type Tree struct {
	Branches []models.Branch
}

// Len returns the number of branches
func (t *Tree) Len() int { return len(t.Branches) }

// Branch returns the branch at index i
func (t *Tree) Branch(i int) (*models.Branch, error) {
	if i < 0 || i >= len(t.Branches) {
		return nil, fmt.Errorf("branch %d out of range [0, %d)", i, len(t.Branches))
	}
	return &t.Branches[i], nil
}

// Roots returns the indices of all branches without a parent
func (t *Tree) Roots() []int {
	var roots []int
	for i := range t.Branches {
		if t.Branches[i].IsRoot() {
			roots = append(roots, i)
		}
	}
	return roots
}

// Children returns the indices of the branches whose parent is i
func (t *Tree) Children(i int) []int {
	var children []int
	for k := range t.Branches {
		if t.Branches[k].Parent == i {
			children = append(children, k)
		}
	}
	return children
}

// Primary returns the proximal-most branch: the first root in input order.
// It returns -1 for an empty tree.
func (t *Tree) Primary() int {
	for i := range t.Branches {
		if t.Branches[i].IsRoot() {
			return i
		}
	}
	return -1
}
