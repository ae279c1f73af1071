package engine

import (
	"fmt"
	"slices"
	"strings"
)

// DAGBuilder builds a directed acyclic graph from resources and computes
// a deterministic execution order.
type DAGBuilder struct {
	// resources maps IDs to resources
	resources map[string]Resource

	// index maps IDs to their declaration position
	index map[string]int

	// declared holds IDs in declaration order
	declared []string

	// adjacencyList maps IDs to their dependents
	adjacencyList map[string][]string

	// reverseAdjacencyList maps IDs to their dependencies
	reverseAdjacencyList map[string][]string

	// inDegree tracks the number of unmet dependencies of each node
	inDegree map[string]int

	// order is the computed execution order
	order []string

	// levels maps IDs to their dependency depth
	levels map[string]int
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		resources:            make(map[string]Resource),
		index:                make(map[string]int),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
		levels:               make(map[string]int),
	}
}

// BuildGraph validates dependencies, rejects cycles and computes the
// execution order. Among resources whose dependencies are all met, the one
// declared first runs first, so identical input always yields the same order.
func (b *DAGBuilder) BuildGraph(resources []Resource) (*ExecutionGraph, error) {
	if len(resources) == 0 {
		return &ExecutionGraph{
			Nodes: make(map[string]*GraphNode),
			Order: make([]string, 0),
			Roots: make([]string, 0),
			Depth: 0,
		}, nil
	}

	if err := b.initialize(resources); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeOrder(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

// initialize indexes resources and builds the adjacency lists.
func (b *DAGBuilder) initialize(resources []Resource) error {
	for i, r := range resources {
		if r == nil {
			return NewConfigurationError(fmt.Sprintf("resource at position %d is nil", i), nil).
				WithCode(ErrCodeValidation)
		}
		id := r.ID()
		if id == "" {
			return NewConfigurationError("resource has empty ID", nil).
				WithCode(ErrCodeValidation)
		}
		if _, exists := b.resources[id]; exists {
			return NewConfigurationError(fmt.Sprintf("duplicate resource ID: %s", id), nil).
				WithCode(ErrCodeValidation).WithResource(id)
		}

		b.resources[id] = r
		b.index[id] = i
		b.declared = append(b.declared, id)
		b.adjacencyList[id] = make([]string, 0)
		b.reverseAdjacencyList[id] = make([]string, 0)
		b.inDegree[id] = 0
	}

	// Walk in declaration order so dependent lists are deterministic
	for _, id := range b.declared {
		for _, dep := range b.resources[id].Dependencies() {
			if _, exists := b.resources[dep]; !exists {
				return NewConfigurationError(
					fmt.Sprintf("resource %s depends on non-existent resource %s", id, dep),
					nil,
				).WithCode(ErrCodeValidation).WithResource(id)
			}
			if slices.Contains(b.reverseAdjacencyList[id], dep) {
				continue
			}

			// Edge from dependency to dependent
			b.adjacencyList[dep] = append(b.adjacencyList[dep], id)
			b.reverseAdjacencyList[id] = append(b.reverseAdjacencyList[id], dep)
			b.inDegree[id]++
		}
	}

	return nil
}

// detectCycles uses depth-first search to find circular dependencies.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range b.declared {
		if visited[id] {
			continue
		}
		if cycle := b.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			return NewConfigurationError(
				fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)),
				nil,
			).WithCode(ErrCodeCycle).WithDetail("cycle", cycle)
		}
	}

	return nil
}

// detectCyclesUtil returns the cycle path reachable from nodeID, if any.
func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle := b.detectCyclesUtil(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
			continue
		}
		if recStack[dependent] {
			start := slices.Index(path, dependent)
			cycle := append([]string{}, path[start:]...)
			return append(cycle, dependent)
		}
	}

	recStack[nodeID] = false
	return nil
}

// computeOrder runs Kahn's algorithm, always taking the ready resource with
// the lowest declaration index.
func (b *DAGBuilder) computeOrder() error {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegree[id] = degree
	}

	ready := make([]int, 0)
	for _, id := range b.declared {
		if inDegree[id] == 0 {
			ready = append(ready, b.index[id])
		}
	}

	if len(ready) == 0 {
		return NewConfigurationError("no root resources found - all resources have dependencies", nil).
			WithCode(ErrCodeCycle)
	}

	b.order = make([]string, 0, len(b.declared))
	for len(ready) > 0 {
		slices.Sort(ready)
		id := b.declared[ready[0]]
		ready = ready[1:]
		b.order = append(b.order, id)

		level := 0
		for _, dep := range b.reverseAdjacencyList[id] {
			level = max(level, b.levels[dep]+1)
		}
		b.levels[id] = level

		for _, dependent := range b.adjacencyList[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, b.index[dependent])
			}
		}
	}

	// Should never happen if cycle detection worked
	if len(b.order) != len(b.declared) {
		return NewConfigurationError("failed to order all resources - possible cycle", nil).
			WithCode(ErrCodeInternal)
	}

	return nil
}

// buildExecutionGraph creates the final ExecutionGraph structure.
func (b *DAGBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes: make(map[string]*GraphNode, len(b.order)),
		Order: append([]string{}, b.order...),
		Roots: make([]string, 0),
	}

	for _, id := range b.declared {
		level := b.levels[id]
		graph.Nodes[id] = &GraphNode{
			ID:           id,
			Index:        b.index[id],
			Level:        level,
			Dependencies: b.reverseAdjacencyList[id],
			Dependents:   b.adjacencyList[id],
		}
		if level == 0 {
			graph.Roots = append(graph.Roots, id)
		}
		graph.Depth = max(graph.Depth, level+1)
	}

	return graph
}

// Order returns the computed execution order.
func (b *DAGBuilder) Order() []string {
	return b.order
}

// Resource returns an indexed resource by ID.
func (b *DAGBuilder) Resource(id string) Resource {
	return b.resources[id]
}

// ToDOT generates a DOT format representation of the graph for visualization.
// When actions are supplied, nodes are labeled and colored by planned action.
// The output can be rendered with Graphviz tools.
func (b *DAGBuilder) ToDOT(actions map[string]ActionType) string {
	var sb strings.Builder

	sb.WriteString("digraph Reconcile {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	byLevel := make(map[int][]string)
	depth := 0
	for _, id := range b.order {
		level := b.levels[id]
		byLevel[level] = append(byLevel[level], id)
		depth = max(depth, level+1)
	}

	for level := 0; level < depth; level++ {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range byLevel[level] {
			r := b.resources[id]
			label := fmt.Sprintf("%s\\n%s", id, r.Kind())
			action, planned := actions[id]
			if planned {
				label = fmt.Sprintf("%s\\n%s", label, action)
			}
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				id, label, getActionColor(action)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, id := range b.order {
		for _, dep := range b.reverseAdjacencyList[id] {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", dep, id))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// getActionColor returns a color for visualizing action types.
func getActionColor(action ActionType) string {
	switch action {
	case ActionCreateDirectory, ActionCopyFile:
		return "lightgreen"
	case ActionStartStack:
		return "lightblue"
	case ActionStopStack:
		return "lightcoral"
	case ActionNone:
		return "lightgray"
	default:
		return "white"
	}
}

// ValidateGraph performs additional consistency checks on a built graph.
func (b *DAGBuilder) ValidateGraph(graph *ExecutionGraph) error {
	if len(graph.Nodes) != len(b.resources) || len(graph.Order) != len(b.resources) {
		return NewConfigurationError("graph node count mismatch", nil).
			WithCode(ErrCodeInternal)
	}

	position := make(map[string]int, len(graph.Order))
	for i, id := range graph.Order {
		position[id] = i
	}

	for id, node := range graph.Nodes {
		for _, dep := range node.Dependencies {
			if _, exists := graph.Nodes[dep]; !exists {
				return NewConfigurationError(fmt.Sprintf("edge references non-existent node: %s", dep), nil).
					WithCode(ErrCodeInternal)
			}
			if position[dep] >= position[id] {
				return NewConfigurationError(fmt.Sprintf("%s is ordered before its dependency %s", id, dep), nil).
					WithCode(ErrCodeInternal)
			}
		}
	}

	for _, rootID := range graph.Roots {
		if len(graph.Nodes[rootID].Dependencies) > 0 {
			return NewConfigurationError(fmt.Sprintf("root node %s has dependencies", rootID), nil).
				WithCode(ErrCodeInternal)
		}
	}

	return nil
}
