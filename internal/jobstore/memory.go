package jobstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process Store used by the CLI and tests.
type Memory struct {
	mu     sync.Mutex
	videos map[string]*Video
}

func NewMemory() *Memory {
	return &Memory{videos: make(map[string]*Video)}
}

func (m *Memory) Create(_ context.Context, v *Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		return fmt.Errorf("create job: empty id")
	}
	if _, ok := m.videos[v.ID]; ok {
		return fmt.Errorf("create job: %s already exists", v.ID)
	}
	if v.Status == "" {
		v.Status = StatusSubmitted
	}
	v.CreatedAt = now()
	v.GSI1SK = v.CreatedAt + "#" + v.ID
	cp := *v
	m.videos[v.ID] = &cp
	return nil
}

func (m *Memory) update(id string, fn func(*Video)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return ErrNotFound
	}
	fn(v)
	v.UpdatedAt = now()
	return nil
}

func (m *Memory) UpdateProgress(_ context.Context, id, status string, percent float64, message string) error {
	return m.update(id, func(v *Video) {
		v.Status = status
		v.ProgressPercent = percent
		v.StageMessage = message
	})
}

func (m *Memory) Complete(_ context.Context, id string, c Completion) error {
	return m.update(id, func(v *Video) {
		v.Status = StatusCompleted
		v.ProgressPercent = 1
		v.StageMessage = "Complete"
		v.Title = c.Title
		v.VideoURL = c.VideoURL
		v.UsedFallback = c.UsedFallback
		if c.PlanJSON != "" {
			v.PlanJSON = c.PlanJSON
		}
	})
}

func (m *Memory) Fail(_ context.Context, id, errMsg string) error {
	return m.update(id, func(v *Video) {
		v.Status = StatusError
		v.ErrorMessage = errMsg
		v.StageMessage = "Failed: " + errMsg
	})
}

func (m *Memory) Get(_ context.Context, id string) (*Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

// List pages by the same {createdAt}#{id} cursor Dynamo uses.
func (m *Memory) List(_ context.Context, limit int, cursor string) ([]Video, string, error) {
	if limit <= 0 {
		limit = defaultPage
	}
	m.mu.Lock()
	all := make([]Video, 0, len(m.videos))
	for _, v := range m.videos {
		all = append(all, *v)
	}
	m.mu.Unlock()

	slices.SortFunc(all, func(a, b Video) int { return strings.Compare(b.GSI1SK, a.GSI1SK) })
	if cursor != "" {
		i := slices.IndexFunc(all, func(v Video) bool { return v.GSI1SK < cursor })
		if i < 0 {
			return nil, "", nil
		}
		all = all[i:]
	}
	if len(all) <= limit {
		return all, "", nil
	}
	page := all[:limit]
	return page, page[len(page)-1].GSI1SK, nil
}

var _ Store = (*Memory)(nil)
