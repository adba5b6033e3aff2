package cluster

import "github.com/jamesainslie/dupesweep/pkg/dupesweep/types"

// bkTree is a Burkhard-Keller tree over Hamming distance. Queries prune
// subtrees using the triangle inequality.
type bkTree struct {
	root      *bkNode
	threshold int
}

type bkNode struct {
	id       int
	hash     types.Hash
	children map[int]*bkNode
}

func newBKTree(threshold int) *bkTree { return &bkTree{threshold: threshold} }

func (t *bkTree) add(id int, h types.Hash) {
	n := &bkNode{id: id, hash: h}
	if t.root == nil {
		t.root = n
		return
	}
	cur := t.root
	for {
		d := cur.hash.Distance(h)
		child, ok := cur.children[d]
		if !ok {
			if cur.children == nil {
				cur.children = make(map[int]*bkNode)
			}
			cur.children[d] = n
			return
		}
		cur = child
	}
}

func (t *bkTree) near(h types.Hash, fn func(id int)) {
	threshold := t.threshold
	if t.root == nil {
		return
	}
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := n.hash.Distance(h)
		if d <= threshold {
			fn(n.id)
		}
		for cd, child := range n.children {
			if cd >= d-threshold && cd <= d+threshold {
				stack = append(stack, child)
			}
		}
	}
}
