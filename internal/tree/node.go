package tree

import (
	"fmt"
	"math/rand"
	"strings"
)

type Kind int

const (
	KindConst Kind = iota
	KindFeature
	KindOp
)

// Node is one node of a program tree. Constant nodes carry a tunable Value and
// accumulate Grad during Backprop; feature nodes index into the input vector.
type Node struct {
	Kind     Kind
	Op       Op
	Feature  int
	Value    float64
	Grad     float64
	Children []*Node

	// randomize marks a vocabulary prototype whose value is drawn fresh each
	// time the generator places it in a tree.
	randomize bool
}

func NewConstant(v float64) *Node {
	return &Node{Kind: KindConst, Value: v}
}

// RandomConstant returns a constant prototype that materializes with a value
// drawn from U(-5, 5) when placed in a tree.
func RandomConstant() *Node {
	return &Node{Kind: KindConst, randomize: true}
}

func NewFeature(index int) *Node {
	return &Node{Kind: KindFeature, Feature: index}
}

func NewOp(op Op, children ...*Node) *Node {
	return &Node{Kind: KindOp, Op: op, Children: children}
}

// Eval computes the node's output for one input vector. Features outside the
// input range evaluate to zero.
func (n *Node) Eval(x []float64) float64 {
	switch n.Kind {
	case KindConst:
		return n.Value
	case KindFeature:
		if n.Feature >= 0 && n.Feature < len(x) {
			return x[n.Feature]
		}
		return 0
	default:
		args := make([]float64, len(n.Children))
		for i, child := range n.Children {
			args[i] = child.Eval(x)
		}
		return n.Op.Apply(args)
	}
}

// Backprop accumulates d(output)/d(constant) scaled by adjoint into the Grad
// field of every constant node in the subtree.
func (n *Node) Backprop(x []float64, adjoint float64) {
	switch n.Kind {
	case KindConst:
		n.Grad += adjoint
	case KindFeature:
	default:
		args := make([]float64, len(n.Children))
		for i, child := range n.Children {
			args[i] = child.Eval(x)
		}
		for i, child := range n.Children {
			child.Backprop(x, adjoint*n.Op.Partial(args, i))
		}
	}
}

// Clone deep-copies the subtree. Gradient state is not carried over.
func (n *Node) Clone() *Node {
	out := &Node{
		Kind:      n.Kind,
		Op:        n.Op,
		Feature:   n.Feature,
		Value:     n.Value,
		randomize: n.randomize,
	}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			out.Children[i] = child.Clone()
		}
	}
	return out
}

// Size returns the number of nodes in the subtree.
func (n *Node) Size() int {
	total := 1
	for _, child := range n.Children {
		total += child.Size()
	}
	return total
}

// Depth returns the length of the longest root-to-leaf path, 0 for a leaf.
func (n *Node) Depth() int {
	deepest := 0
	for _, child := range n.Children {
		if d := child.Depth() + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}

// Nodes returns the subtree's nodes in pre-order. The slice aliases live
// nodes, so callers can rewrite the tree through it.
func (n *Node) Nodes() []*Node {
	out := make([]*Node, 0, 8)
	var walk func(*Node)
	walk = func(cur *Node) {
		out = append(out, cur)
		for _, child := range cur.Children {
			walk(child)
		}
	}
	walk(n)
	return out
}

// Constants returns every constant node in the subtree, pre-order.
func (n *Node) Constants() []*Node {
	out := make([]*Node, 0, 4)
	for _, node := range n.Nodes() {
		if node.Kind == KindConst {
			out = append(out, node)
		}
	}
	return out
}

// Arity returns the number of children the node expects.
func (n *Node) Arity() int {
	if n.Kind == KindOp {
		return n.Op.Arity()
	}
	return 0
}

func (n *Node) materialize(rng *rand.Rand) {
	if n.randomize {
		n.Value = rng.Float64()*10 - 5
		n.randomize = false
	}
}

// String renders the subtree as an infix expression.
func (n *Node) String() string {
	switch n.Kind {
	case KindConst:
		return fmt.Sprintf("%.4g", n.Value)
	case KindFeature:
		return fmt.Sprintf("x%d", n.Feature)
	default:
		if n.Op.Arity() == 2 && isSymbolic(n.Op.Name()) {
			return fmt.Sprintf("(%s %s %s)", n.Children[0], n.Op.Name(), n.Children[1])
		}
		parts := make([]string, len(n.Children))
		for i, child := range n.Children {
			parts[i] = child.String()
		}
		return fmt.Sprintf("%s(%s)", n.Op.Name(), strings.Join(parts, ", "))
	}
}

func isSymbolic(name string) bool {
	switch name {
	case "+", "-", "*", "/":
		return true
	default:
		return false
	}
}
