package store

import (
	"sort"
	"sync"

	"github.com/nvidal/pairtask/internal/task"
	"github.com/nvidal/pairtask/internal/tasktype"
)

// Op distinguishes the two kinds of change a merge batch can carry.
type Op int

const (
	OpUpsert Op = iota
	OpDelete
)

// Change is one element of a merge batch. Task is set for upserts; ID for
// deletes.
type Change struct {
	Op   Op
	Task *task.Task
	ID   string
}

func Upsert(t *task.Task) Change {
	return Change{Op: OpUpsert, Task: t}
}

func Delete(id string) Change {
	return Change{Op: OpDelete, ID: id}
}

// Filter narrows a Query to root tasks matching every set field. Subtasks of
// a matching root are always included.
type Filter struct {
	Status     task.Status
	Type       string
	Priority   task.Priority
	AssignedTo string
}

// Node is one entry of the tree view returned by Query. Type is resolved
// against the cached type set, with a placeholder for dangling references.
type Node struct {
	Task     *task.Task
	Type     *tasktype.TaskType
	Subtasks []*Node
}

// Store is the merged local view over both participants' task partitions.
// It holds pure state; every mutation goes through Merge/Evict/SetTypes under
// one lock, and reads return defensive copies, so concurrent feed callbacks
// and the optimistic mutation path cannot interleave partial updates.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]*task.Task
	children map[string][]string // parent id -> child ids, kept in step with tasks
	types    map[string]*tasktype.TaskType
}

func New() *Store {
	return &Store{
		tasks:    make(map[string]*task.Task),
		children: make(map[string][]string),
		types:    make(map[string]*tasktype.TaskType),
	}
}

// Merge applies an ordered batch of changes. Upserts resolve identity
// collisions by last-write-wins on the logical timestamp; an incoming doc
// with a timestamp not older than the cached one overwrites it, which makes
// re-applying the same snapshot a no-op.
func (s *Store) Merge(changes []Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		switch c.Op {
		case OpUpsert:
			if c.Task == nil {
				continue
			}
			incoming := c.Task.Clone()
			existing, ok := s.tasks[incoming.ID]
			if ok && incoming.LogicalTimestamp().Before(existing.LogicalTimestamp()) {
				continue
			}
			if ok {
				s.unindex(existing)
			}
			s.tasks[incoming.ID] = incoming
			s.index(incoming)
		case OpDelete:
			s.remove(c.ID)
		}
	}
}

// Evict removes every cached task of the given partition whose id is absent
// from surviving. Deletes observed as "gone from the snapshot" arrive here.
func (s *Store) Evict(partition string, surviving map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if t.AssignedTo != partition {
			continue
		}
		if _, ok := surviving[id]; !ok {
			s.remove(id)
		}
	}
}

// SetTypes replaces the cached task type set.
func (s *Store) SetTypes(types []*tasktype.TaskType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = make(map[string]*tasktype.TaskType, len(types))
	for _, t := range types {
		s.types[t.ID] = t.Clone()
	}
}

// Clear drops all cached state. Called on logout after the feeds are closed.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*task.Task)
	s.children = make(map[string][]string)
	s.types = make(map[string]*tasktype.TaskType)
}

func (s *Store) Get(id string) (*task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// CountByType counts tasks, across both partitions, referencing the type id.
// The mutation path uses it as the client-side pre-check before a type
// delete; the guard remains the authoritative check.
func (s *Store) CountByType(typeID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, t := range s.tasks {
		if t.Type == typeID {
			count++
		}
	}
	return count
}

// Types returns the cached type set sorted by id.
func (s *Store) Types() []*tasktype.TaskType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tasktype.TaskType, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SubtreeIDs returns id plus every descendant id, depth first. The mutation
// path uses it for cascade delete and cascade completion.
func (s *Store) SubtreeIDs(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	s.collect(id, &ids)
	return ids
}

func (s *Store) collect(id string, ids *[]string) {
	if _, ok := s.tasks[id]; !ok {
		return
	}
	*ids = append(*ids, id)
	for _, child := range s.children[id] {
		s.collect(child, ids)
	}
}

// Query returns the filtered tree view: roots ordered pending first, then
// priority high to low, then newest first, with subtasks nested beneath
// their parent in the same order. A task whose parent is not (yet) cached is
// treated as a root so that no data is hidden mid-sync.
func (s *Store) Query(f Filter) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roots []*task.Task
	for _, t := range s.tasks {
		if t.ParentID != "" {
			if _, ok := s.tasks[t.ParentID]; ok {
				continue
			}
		}
		if !f.matches(t) {
			continue
		}
		roots = append(roots, t)
	}
	sortTasks(roots)

	nodes := make([]*Node, 0, len(roots))
	for _, t := range roots {
		nodes = append(nodes, s.buildNode(t))
	}
	return nodes
}

func (f Filter) matches(t *task.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	return true
}

func (s *Store) buildNode(t *task.Task) *Node {
	n := &Node{
		Task: t.Clone(),
		Type: s.resolveType(t.Type),
	}
	childIDs := s.children[t.ID]
	if len(childIDs) == 0 {
		return n
	}
	children := make([]*task.Task, 0, len(childIDs))
	for _, id := range childIDs {
		if child, ok := s.tasks[id]; ok {
			children = append(children, child)
		}
	}
	sortTasks(children)
	for _, child := range children {
		n.Subtasks = append(n.Subtasks, s.buildNode(child))
	}
	return n
}

func (s *Store) resolveType(id string) *tasktype.TaskType {
	if t, ok := s.types[id]; ok {
		return t.Clone()
	}
	return tasktype.Unknown(id)
}

func sortTasks(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Status != b.Status {
			return a.Status == task.StatusPending
		}
		if a.Priority.Weight() != b.Priority.Weight() {
			return a.Priority.Weight() > b.Priority.Weight()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// index and unindex maintain the parent -> children secondary index. Callers
// hold the write lock.
func (s *Store) index(t *task.Task) {
	if t.ParentID == "" {
		return
	}
	s.children[t.ParentID] = append(s.children[t.ParentID], t.ID)
}

func (s *Store) unindex(t *task.Task) {
	if t.ParentID == "" {
		return
	}
	siblings := s.children[t.ParentID]
	for i, id := range siblings {
		if id == t.ID {
			s.children[t.ParentID] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(s.children[t.ParentID]) == 0 {
		delete(s.children, t.ParentID)
	}
}

func (s *Store) remove(id string) {
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	s.unindex(t)
	delete(s.tasks, id)
}
