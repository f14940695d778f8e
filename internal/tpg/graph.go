// Package tpg holds the tangled program graph: teams and actions linked by
// program-carrying edges, and the engine that walks it.
package tpg

import (
	"errors"
	"fmt"

	"tangled/internal/program"
)

var (
	ErrActionSource         = errors.New("edge source must be a team")
	ErrDuplicateDestination = errors.New("team already has an edge to this destination")
	ErrForeignVertex        = errors.New("vertex does not belong to the graph")
	ErrForeignEdge          = errors.New("edge does not belong to the graph")
	ErrNilProgram           = errors.New("edge program is required")
)

type Kind uint8

const (
	Team Kind = iota
	Action
)

func (k Kind) String() string {
	if k == Action {
		return "action"
	}
	return "team"
}

// Vertex is either a team, which chooses among its outgoing edges, or an
// action, a terminal carrying the decision identifier.
type Vertex struct {
	id       uint64
	kind     Kind
	actionID uint64
	outgoing []*Edge
	incoming []*Edge
	graph    *Graph
}

func (v *Vertex) ID() uint64 { return v.id }

func (v *Vertex) Kind() Kind { return v.kind }

func (v *Vertex) IsAction() bool { return v.kind == Action }

// ActionID is only meaningful for action vertices.
func (v *Vertex) ActionID() uint64 { return v.actionID }

// Outgoing returns the edges in creation order.
func (v *Vertex) Outgoing() []*Edge {
	return append([]*Edge(nil), v.outgoing...)
}

func (v *Vertex) Incoming() []*Edge {
	return append([]*Edge(nil), v.incoming...)
}

func (v *Vertex) NbOutgoing() int { return len(v.outgoing) }

func (v *Vertex) NbIncoming() int { return len(v.incoming) }

// HasEdgeTo reports whether v already points at dst.
func (v *Vertex) HasEdgeTo(dst *Vertex) bool {
	for _, e := range v.outgoing {
		if e.destination == dst {
			return true
		}
	}
	return false
}

// NbActionEdges counts the outgoing edges that lead to an action.
func (v *Vertex) NbActionEdges() int {
	n := 0
	for _, e := range v.outgoing {
		if e.destination.kind == Action {
			n++
		}
	}
	return n
}

type Edge struct {
	source      *Vertex
	destination *Vertex
	program     *program.Program
}

func (e *Edge) Source() *Vertex { return e.source }

func (e *Edge) Destination() *Vertex { return e.destination }

func (e *Edge) Program() *program.Program { return e.program }

// SetProgram replaces the program carried by e. Programs are shared between
// edges, so callers mutate a clone and install it here.
func (e *Edge) SetProgram(p *program.Program) {
	if p != nil {
		e.program = p
	}
}

// Graph owns the vertices and edges of one population.
type Graph struct {
	env      *program.Environment
	vertices []*Vertex
	edges    []*Edge
	nextID   uint64
}

func NewGraph(env *program.Environment) *Graph {
	return &Graph{env: env}
}

func (g *Graph) Environment() *program.Environment { return g.env }

func (g *Graph) AddNewTeam() *Vertex {
	return g.addVertex(&Vertex{kind: Team})
}

func (g *Graph) AddNewAction(actionID uint64) *Vertex {
	return g.addVertex(&Vertex{kind: Action, actionID: actionID})
}

func (g *Graph) addVertex(v *Vertex) *Vertex {
	v.id = g.nextID
	v.graph = g
	g.nextID++
	g.vertices = append(g.vertices, v)
	return v
}

func (g *Graph) NbVertices() int { return len(g.vertices) }

func (g *Graph) NbEdges() int { return len(g.edges) }

// Vertices returns the vertices in creation order.
func (g *Graph) Vertices() []*Vertex {
	return append([]*Vertex(nil), g.vertices...)
}

func (g *Graph) Edges() []*Edge {
	return append([]*Edge(nil), g.edges...)
}

// RootVertices lists the vertices without incoming edges, in creation order.
func (g *Graph) RootVertices() []*Vertex {
	var roots []*Vertex
	for _, v := range g.vertices {
		if len(v.incoming) == 0 {
			roots = append(roots, v)
		}
	}
	return roots
}

func (g *Graph) NbRootVertices() int {
	n := 0
	for _, v := range g.vertices {
		if len(v.incoming) == 0 {
			n++
		}
	}
	return n
}

// Teams lists the team vertices in creation order.
func (g *Graph) Teams() []*Vertex {
	return g.filter(Team)
}

func (g *Graph) Actions() []*Vertex {
	return g.filter(Action)
}

func (g *Graph) filter(k Kind) []*Vertex {
	var out []*Vertex
	for _, v := range g.vertices {
		if v.kind == k {
			out = append(out, v)
		}
	}
	return out
}

func (g *Graph) HasVertex(v *Vertex) bool {
	return v != nil && v.graph == g
}

// VertexByID looks a vertex up by its creation identifier.
func (g *Graph) VertexByID(id uint64) (*Vertex, bool) {
	for _, v := range g.vertices {
		if v.id == id {
			return v, true
		}
	}
	return nil, false
}

// AddNewEdge links src to dst through p.
func (g *Graph) AddNewEdge(src, dst *Vertex, p *program.Program) (*Edge, error) {
	if !g.HasVertex(src) || !g.HasVertex(dst) {
		return nil, ErrForeignVertex
	}
	if src.kind != Team {
		return nil, ErrActionSource
	}
	if p == nil {
		return nil, ErrNilProgram
	}
	if src.HasEdgeTo(dst) {
		return nil, fmt.Errorf("%w: team %d -> vertex %d", ErrDuplicateDestination, src.id, dst.id)
	}
	e := &Edge{source: src, destination: dst, program: p}
	src.outgoing = append(src.outgoing, e)
	dst.incoming = append(dst.incoming, e)
	g.edges = append(g.edges, e)
	return e, nil
}

func (g *Graph) HasEdge(e *Edge) bool {
	for _, x := range g.edges {
		if x == e {
			return true
		}
	}
	return false
}

func (g *Graph) RemoveEdge(e *Edge) error {
	if !g.HasEdge(e) {
		return ErrForeignEdge
	}
	g.edges = removeEdge(g.edges, e)
	e.source.outgoing = removeEdge(e.source.outgoing, e)
	e.destination.incoming = removeEdge(e.destination.incoming, e)
	return nil
}

// SetEdgeDestination moves e to point at dst, keeping its place among the
// source's outgoing edges.
func (g *Graph) SetEdgeDestination(e *Edge, dst *Vertex) error {
	if !g.HasEdge(e) {
		return ErrForeignEdge
	}
	if !g.HasVertex(dst) {
		return ErrForeignVertex
	}
	if e.destination == dst {
		return nil
	}
	if e.source.HasEdgeTo(dst) {
		return fmt.Errorf("%w: team %d -> vertex %d", ErrDuplicateDestination, e.source.id, dst.id)
	}
	e.destination.incoming = removeEdge(e.destination.incoming, e)
	e.destination = dst
	dst.incoming = append(dst.incoming, e)
	return nil
}

// RemoveVertex deletes v together with all its incoming and outgoing edges.
func (g *Graph) RemoveVertex(v *Vertex) error {
	if !g.HasVertex(v) {
		return ErrForeignVertex
	}
	for _, e := range append(v.Outgoing(), v.incoming...) {
		if !g.HasEdge(e) {
			continue // self loop, already gone
		}
		if err := g.RemoveEdge(e); err != nil {
			return err
		}
	}
	for i, x := range g.vertices {
		if x == v {
			g.vertices = append(g.vertices[:i], g.vertices[i+1:]...)
			break
		}
	}
	v.graph = nil
	return nil
}

// CloneVertex adds a copy of v. A team copy gets edges to the same
// destinations sharing the same programs, in the same order.
func (g *Graph) CloneVertex(v *Vertex) (*Vertex, error) {
	if !g.HasVertex(v) {
		return nil, ErrForeignVertex
	}
	if v.kind == Action {
		return g.AddNewAction(v.actionID), nil
	}
	c := g.AddNewTeam()
	for _, e := range v.outgoing {
		if _, err := g.AddNewEdge(c, e.destination, e.program); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RemoveUnreachableTeams deletes the teams no root can reach. Such teams only
// appear as cycles left behind by root removal. Actions are always kept. It
// returns the number of removed teams.
func (g *Graph) RemoveUnreachableTeams() int {
	reached := make(map[*Vertex]bool, len(g.vertices))
	stack := g.RootVertices()
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[v] {
			continue
		}
		reached[v] = true
		for _, e := range v.outgoing {
			if !reached[e.destination] {
				stack = append(stack, e.destination)
			}
		}
	}
	removed := 0
	for _, v := range g.Vertices() {
		if v.kind == Team && !reached[v] {
			_ = g.RemoveVertex(v)
			removed++
		}
	}
	return removed
}

// Clear drops every vertex and edge.
func (g *Graph) Clear() {
	for _, v := range g.vertices {
		v.graph = nil
		v.incoming = nil
		v.outgoing = nil
	}
	g.vertices = nil
	g.edges = nil
}

func removeEdge(edges []*Edge, e *Edge) []*Edge {
	for i, x := range edges {
		if x == e {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}
