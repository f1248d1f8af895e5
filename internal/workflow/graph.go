// Package workflow implements the conditional graph engine that
// orchestrates multi-step runs. Nodes mutate a single run state; routing
// functions inspect that state to pick the next node, which allows loops.
// The engine bounds every loop: re-entering a node through a back-edge
// consumes that node's retry budget, and an exhausted budget reroutes the
// run to the graph's escalation node instead of looping forever.
package workflow

import (
	"context"
	"fmt"

	"github.com/cascade-ai/cascade/internal/domain"
)

// Terminal is the routing result that ends the run at the current node.
const Terminal = ""

// NodeFunc executes one node's work against the run state.
type NodeFunc func(ctx context.Context, state *domain.WorkflowState) error

// RouteFunc picks the next node id from the run state. Returning Terminal
// ends the run.
type RouteFunc func(state *domain.WorkflowState) string

// Node is one vertex of the workflow graph.
type Node struct {
	// ID uniquely names the node within its graph.
	ID string

	// Run performs the node's work. May be nil for pure routing nodes.
	Run NodeFunc

	// Next routes to the following node. Nil makes the node terminal.
	Next RouteFunc

	// MaxRetries bounds re-entries into this node through back-edges.
	// Negative means the engine default applies; zero forbids re-entry.
	MaxRetries int

	// Branches fan out in parallel on cloned states after Run completes.
	// The clones merge deterministically in Branches order before Next
	// routes onward.
	Branches []string
}

// Graph is an immutable node graph with a designated entry node and an
// escalation node that absorbs exhausted retry budgets.
type Graph struct {
	nodes      map[string]*Node
	entry      string
	escalation string
}

// NewGraph creates an empty graph. The entry node starts every run; the
// escalation node receives runs whose retry budgets are exhausted and
// should flag the state for review.
func NewGraph(entry, escalation string) *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		entry:      entry,
		escalation: escalation,
	}
}

// AddNode registers a node, rejecting duplicates.
func (g *Graph) AddNode(node *Node) error {
	if node.ID == "" {
		return fmt.Errorf("workflow: node id must not be empty")
	}
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("workflow: duplicate node %q", node.ID)
	}
	g.nodes[node.ID] = node
	return nil
}

// MustAddNode registers a node and panics on error. For static graph
// construction at startup.
func (g *Graph) MustAddNode(node *Node) {
	if err := g.AddNode(node); err != nil {
		panic(err)
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Validate checks the graph's static structure: the entry and escalation
// nodes exist, and every declared branch references a known node. Routing
// targets are dynamic and validated at execution time.
func (g *Graph) Validate() error {
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("workflow: entry node %q not found", g.entry)
	}
	if _, ok := g.nodes[g.escalation]; !ok {
		return fmt.Errorf("workflow: escalation node %q not found", g.escalation)
	}
	for _, node := range g.nodes {
		for _, branch := range node.Branches {
			if _, ok := g.nodes[branch]; !ok {
				return fmt.Errorf("workflow: node %q branches to unknown node %q", node.ID, branch)
			}
			if branch == node.ID {
				return fmt.Errorf("workflow: node %q branches to itself", node.ID)
			}
		}
	}
	return nil
}
