package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Group indexes tasks by name so the admin surface can list and retune them.
type Group struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	presets map[string]time.Duration
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{
		tasks:   make(map[string]*Task),
		presets: make(map[string]time.Duration),
	}
}

// Add registers t. Names must be unique within the group. A preset interval
// for t's name is applied before Add returns.
func (g *Group) Add(t *Task) error {
	g.mu.Lock()
	if _, exists := g.tasks[t.Name()]; exists {
		g.mu.Unlock()
		return fmt.Errorf("scheduler: task %q already registered", t.Name())
	}
	g.tasks[t.Name()] = t
	preset, ok := g.presets[t.Name()]
	g.mu.Unlock()

	if ok {
		return t.SetInterval(preset)
	}
	return nil
}

// Preset records an interval for a task that may be added later, and applies
// it now if the task is already registered. Used to restore intervals that
// were changed at runtime.
func (g *Group) Preset(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidConfiguration, d)
	}
	g.mu.Lock()
	g.presets[name] = d
	t, ok := g.tasks[name]
	g.mu.Unlock()

	if ok {
		return t.SetInterval(d)
	}
	return nil
}

// Remove unregisters the named task without stopping it.
func (g *Group) Remove(name string) {
	g.mu.Lock()
	delete(g.tasks, name)
	g.mu.Unlock()
}

// Get returns the named task.
func (g *Group) Get(name string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[name]
	return t, ok
}

// SetInterval retunes the named task.
func (g *Group) SetInterval(name string, d time.Duration) error {
	t, ok := g.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, name)
	}
	return t.SetInterval(d)
}

// Stats returns stats for every task, sorted by name.
func (g *Group) Stats() []Stats {
	g.mu.RLock()
	out := make([]Stats, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t.Stats())
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StopAll stops every task in the group.
func (g *Group) StopAll() {
	g.mu.RLock()
	tasks := make([]*Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		tasks = append(tasks, t)
	}
	g.mu.RUnlock()

	for _, t := range tasks {
		t.Stop()
	}
}
