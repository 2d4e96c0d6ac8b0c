// Package store holds the graph of a pipeline, keyed by stage name.
package store

import (
	"sort"
	"sync"

	"github.com/dominikbraun/graph"
)

// Stages is a graph.Store whose vertex properties can be updated once the vertex exists.
type Stages struct {
	lock       sync.RWMutex
	vertices   map[string]string
	properties map[string]*graph.VertexProperties

	outEdges map[string]map[string]graph.Edge[string] // source -> target
	inEdges  map[string]map[string]graph.Edge[string] // target -> source
}

func NewStages() *Stages {
	return &Stages{
		vertices:   make(map[string]string),
		properties: make(map[string]*graph.VertexProperties),
		outEdges:   make(map[string]map[string]graph.Edge[string]),
		inEdges:    make(map[string]map[string]graph.Edge[string]),
	}
}

func (s *Stages) AddVertex(name, value string, p graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[name]; ok {
		return graph.ErrVertexAlreadyExists
	}
	if p.Attributes == nil {
		p.Attributes = make(map[string]string)
	}

	s.vertices[name] = value
	s.properties[name] = &p

	return nil
}

// ListVertices returns the stage names in lexical order.
func (s *Stages) ListVertices() ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	names := make([]string, 0, len(s.vertices))
	for name := range s.vertices {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

func (s *Stages) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.vertices), nil
}

// Vertex returns the stage and a copy of its properties.
func (s *Stages) Vertex(name string) (string, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.vertices[name]
	if !ok {
		return v, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	p := *s.properties[name]
	p.Attributes = make(map[string]string, len(s.properties[name].Attributes))
	for k, attr := range s.properties[name].Attributes {
		p.Attributes[k] = attr
	}

	return v, p, nil
}

// UpdateVertex applies options to the properties of a stage.
func (s *Stages) UpdateVertex(name string, options ...func(*graph.VertexProperties)) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, ok := s.properties[name]
	if !ok {
		return graph.ErrVertexNotFound
	}
	for _, opt := range options {
		opt(p)
	}

	return nil
}

func (s *Stages) RemoveVertex(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[name]; !ok {
		return graph.ErrVertexNotFound
	}
	if len(s.inEdges[name]) > 0 || len(s.outEdges[name]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.inEdges, name)
	delete(s.outEdges, name)
	delete(s.vertices, name)
	delete(s.properties, name)

	return nil
}

func (s *Stages) AddEdge(source, target string, edge graph.Edge[string]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[source]; !ok {
		s.outEdges[source] = make(map[string]graph.Edge[string])
	}
	s.outEdges[source][target] = edge

	if _, ok := s.inEdges[target]; !ok {
		s.inEdges[target] = make(map[string]graph.Edge[string])
	}
	s.inEdges[target][source] = edge

	return nil
}

func (s *Stages) UpdateEdge(source, target string, edge graph.Edge[string]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[source][target]; !ok {
		return graph.ErrEdgeNotFound
	}
	s.outEdges[source][target] = edge
	s.inEdges[target][source] = edge

	return nil
}

func (s *Stages) RemoveEdge(source, target string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.inEdges[target], source)
	delete(s.outEdges[source], target)

	return nil
}

func (s *Stages) Edge(source, target string) (graph.Edge[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	edge, ok := s.outEdges[source][target]
	if !ok {
		return graph.Edge[string]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *Stages) ListEdges() ([]graph.Edge[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]graph.Edge[string], 0)
	for _, edges := range s.outEdges {
		for _, edge := range edges {
			res = append(res, edge)
		}
	}

	return res, nil
}

var _ graph.Store[string, string] = (*Stages)(nil)
