// Package memstore is an in-memory store.Store with call accounting and
// failure injection, for exercising the clone engine without a backend.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/foldersmith/foldersmith/pkg/model"
)

// Op names a mutating or reading store operation.
type Op string

const (
	OpList      Op = "list"
	OpFind      Op = "find"
	OpCreate    Op = "create"
	OpDuplicate Op = "duplicate"
)

type entry struct {
	node     model.Node
	children []string
	trashed  bool
}

type failure struct {
	after int
	err   error
}

// Store is an in-memory tree. The top level holds every folder in creation
// order, matching a backend whose name search spans the whole account.
type Store struct {
	mu       sync.Mutex
	backend  model.BackendType
	nodes    map[string]*entry
	order    []string
	seq      int
	calls    map[Op]int
	failures map[Op]failure
}

// New creates an empty store reporting the given backend type.
func New(backend model.BackendType) *Store {
	return &Store{
		backend:  backend,
		nodes:    make(map[string]*entry),
		calls:    make(map[Op]int),
		failures: make(map[Op]failure),
	}
}

// Type returns the backend type.
func (s *Store) Type() model.BackendType {
	return s.backend
}

// AddFolder adds a folder under parentID, or at the top level when parentID
// is empty. It does not count as a call.
func (s *Store) AddFolder(parentID, name string) model.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(parentID, name, model.KindFolder)
}

// AddDocument adds a document under parentID.
func (s *Store) AddDocument(parentID, name string) model.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(parentID, name, model.KindDocument)
}

// Trash hides a node from listings and lookups.
func (s *Store) Trash(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.nodes[id]; ok {
		e.trashed = true
	}
}

// FailAfter makes op fail with err once it has succeeded n times.
func (s *Store) FailAfter(op Op, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = failure{after: n, err: err}
}

// Calls returns how often op was invoked, failed calls included.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Mutations returns the number of create and duplicate calls.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[OpCreate] + s.calls[OpDuplicate]
}

// Len returns the number of nodes in the store, trashed ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// Tree is a name/kind snapshot of a subtree.
type Tree struct {
	Name     string
	Kind     model.NodeKind
	Children []Tree
}

// Snapshot returns the visible subtree rooted at id.
func (s *Store) Snapshot(id string) Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(id)
}

func (s *Store) snapshot(id string) Tree {
	e := s.nodes[id]
	t := Tree{Name: e.node.Name, Kind: e.node.Kind}
	for _, cid := range e.children {
		if c := s.nodes[cid]; !c.trashed {
			t.Children = append(t.Children, s.snapshot(cid))
		}
	}
	return t
}

// ListChildren returns the visible children of scope in insertion order.
func (s *Store) ListChildren(ctx context.Context, scope model.Node) ([]model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call(OpList); err != nil {
		return nil, err
	}
	e, ok := s.nodes[scope.ID]
	if !ok {
		return nil, fmt.Errorf("memstore: no node %q", scope.ID)
	}
	return s.visible(e.children), nil
}

// FindByName returns the first visible child of scope named name. A nil
// scope searches every folder in the store.
func (s *Store) FindByName(ctx context.Context, scope *model.Node, name string) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call(OpFind); err != nil {
		return nil, err
	}

	var candidates []model.Node
	if scope == nil {
		for _, n := range s.visible(s.order) {
			if n.IsFolder() {
				candidates = append(candidates, n)
			}
		}
	} else {
		e, ok := s.nodes[scope.ID]
		if !ok {
			return nil, fmt.Errorf("memstore: no node %q", scope.ID)
		}
		candidates = s.visible(e.children)
	}

	for _, n := range candidates {
		if n.Name == name {
			return &n, nil
		}
	}
	return nil, nil
}

// CreateFolder adds a folder under parent.
func (s *Store) CreateFolder(ctx context.Context, parent model.Node, name string) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call(OpCreate); err != nil {
		return nil, err
	}
	if _, ok := s.nodes[parent.ID]; !ok {
		return nil, fmt.Errorf("memstore: no parent %q", parent.ID)
	}
	n := s.add(parent.ID, name, model.KindFolder)
	return &n, nil
}

// DuplicateDocument adds a document named name under dest.
func (s *Store) DuplicateDocument(ctx context.Context, src model.Node, dest model.Node, name string) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call(OpDuplicate); err != nil {
		return nil, err
	}
	if e, ok := s.nodes[src.ID]; !ok || e.node.Kind != model.KindDocument {
		return nil, fmt.Errorf("memstore: no document %q", src.ID)
	}
	if _, ok := s.nodes[dest.ID]; !ok {
		return nil, fmt.Errorf("memstore: no folder %q", dest.ID)
	}
	n := s.add(dest.ID, name, model.KindDocument)
	return &n, nil
}

func (s *Store) call(op Op) error {
	s.calls[op]++
	if f, ok := s.failures[op]; ok && s.calls[op] > f.after {
		return f.err
	}
	return nil
}

func (s *Store) add(parentID, name string, kind model.NodeKind) model.Node {
	s.seq++
	id := fmt.Sprintf("n%d", s.seq)
	n := model.Node{ID: id, Name: name, Kind: kind, Link: "mem://" + id}
	if parentID != "" {
		n.ParentIDs = []string{parentID}
		s.nodes[parentID].children = append(s.nodes[parentID].children, id)
	}
	s.nodes[id] = &entry{node: n}
	s.order = append(s.order, id)
	return n
}

func (s *Store) visible(ids []string) []model.Node {
	var out []model.Node
	for _, id := range ids {
		if e := s.nodes[id]; !e.trashed {
			out = append(out, e.node)
		}
	}
	return out
}
