// Package query implements the advanced query language of spec.md §4.F.2,
// the attribute-selection planner of §4.F.1, and evaluation against asset
// documents. The AST uses the tagged-variant shape spec.md §9 calls for.
package query

import "time"

// NodeKind is the closed set of AST node tags.
type NodeKind int

const (
	NodeAnd NodeKind = iota
	NodeOr
	NodeNot
	NodePredicate
)

// PredicateKind is the closed set of recognized predicate names.
type PredicateKind int

const (
	PredIs PredicateKind = iota
	PredFormat
	PredTag
	PredLocAny
	PredLocLabel
	PredLocCity
	PredLocRegion
	PredBefore
	PredAfter
)

// Node is one AST node: And/Or/Not combine Children, Predicate carries Kind+Arg.
type Node struct {
	Kind     NodeKind
	Children []*Node // And, Or: 2+ operands; Not: exactly 1

	PredKind PredicateKind // valid when Kind == NodePredicate
	Arg      string        // raw predicate argument, case preserved
	ArgDate  time.Time     // parsed date for Before/After, precision-truncated
}

func and(children ...*Node) *Node { return &Node{Kind: NodeAnd, Children: children} }
func or(children ...*Node) *Node  { return &Node{Kind: NodeOr, Children: children} }
func not(child *Node) *Node       { return &Node{Kind: NodeNot, Children: []*Node{child}} }

func predicate(kind PredicateKind, arg string) *Node {
	return &Node{Kind: NodePredicate, PredKind: kind, Arg: arg}
}
