// Package task tracks the ad hoc sub-tasks an agent announces during a run so
// they can be reported to the caller as a live checklist.
package task

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusCompleted:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid task status %q", s)
	}
}

// ErrNotFound is returned by Update when the id is unknown.
var ErrNotFound = errors.New("task not found")

// Task is one tracked sub-task.
type Task struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Status      Status `json:"status"`
	Description string `json:"description,omitempty"`
}

// Patch lists the fields Update should change; nil fields are left as is.
type Patch struct {
	Status      *Status
	Subject     *string
	Description *string
}

// Tracker is a lock-guarded registry of tasks. All reads and writes go
// through a single mutex. Ids are "1", "2", ... and never reused.
type Tracker struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	order  []string
	nextID int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{tasks: make(map[string]*Task), nextID: 1}
}

// Create adds a pending task.
func (t *Tracker) Create(subject, description string) Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.createLocked(subject, description)
}

// CreateAndSnapshot adds a task and returns it together with the full state
// observed in the same critical section.
func (t *Tracker) CreateAndSnapshot(subject, description string) (Task, []Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	created := t.createLocked(subject, description)

	return created, t.listLocked()
}

// Update applies p to the task with the given id.
func (t *Tracker) Update(id string, p Patch) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.updateLocked(id, p)
}

// UpdateAndSnapshot is Update plus a snapshot taken under the same lock.
func (t *Tracker) UpdateAndSnapshot(id string, p Patch) (Task, []Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	updated, err := t.updateLocked(id, p)
	if err != nil {
		return Task{}, nil, err
	}

	return updated, t.listLocked(), nil
}

// Get returns a copy of the task with the given id.
func (t *Tracker) Get(id string) (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.tasks[id]
	if !ok {
		return Task{}, false
	}

	return *tk, true
}

// List returns all tasks in display order.
func (t *Tracker) List() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.listLocked()
}

// Snapshot returns the full tracker state in display order.
func (t *Tracker) Snapshot() []Task { return t.List() }

// Len returns the number of tracked tasks.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.order)
}

func (t *Tracker) createLocked(subject, description string) Task {
	id := strconv.Itoa(t.nextID)
	t.nextID++

	tk := &Task{ID: id, Subject: subject, Status: StatusPending, Description: description}
	t.tasks[id] = tk
	t.order = append(t.order, id)

	return *tk
}

func (t *Tracker) updateLocked(id string, p Patch) (Task, error) {
	tk, ok := t.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if p.Status != nil {
		tk.Status = *p.Status
	}

	if p.Subject != nil {
		tk.Subject = *p.Subject
	}

	if p.Description != nil {
		tk.Description = *p.Description
	}

	return *tk, nil
}

var numberedSubject = regexp.MustCompile(`^(\d+)\. `)

// listLocked copies tasks in creation order, then sorts by the "N. " subject
// prefix only when every subject carries one.
func (t *Tracker) listLocked() []Task {
	out := make([]Task, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tasks[id])
	}

	if len(out) == 0 {
		return out
	}

	nums := make(map[string]int, len(out))
	for _, tk := range out {
		m := numberedSubject.FindStringSubmatch(tk.Subject)
		if m == nil {
			return out
		}

		n, err := strconv.Atoi(m[1])
		if err != nil {
			return out
		}

		nums[tk.ID] = n
	}

	sort.SliceStable(out, func(i, j int) bool { return nums[out[i].ID] < nums[out[j].ID] })

	return out
}
