package workflows

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/pkg/pagination"
)

type memoryEntry struct {
	mu   sync.Mutex
	inst *Instance
}

// MemoryStore is the default in-process Store. The outer map lock only
// guards membership; each entry carries its own mutex so updates to one
// workflow never block another. Instances are deep-copied on every boundary
// crossing so callers can never alias stored state.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[uuid.UUID]*memoryEntry
	pagination pagination.Config
}

// NewMemoryStore creates an empty in-memory workflow store.
func NewMemoryStore(pagination pagination.Config) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[uuid.UUID]*memoryEntry),
		pagination: pagination,
	}
}

func (s *MemoryStore) Create(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[inst.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, inst.ID)
	}

	s.entries[inst.ID] = &memoryEntry{inst: inst.Clone()}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Instance, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.inst.Clone(), nil
}

func (s *MemoryStore) Update(
	ctx context.Context,
	id uuid.UUID,
	mutate func(*Instance) error,
) (*Instance, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	working := entry.inst.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}

	entry.inst = working
	return working.Clone(), nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*Instance, error) {
	active := s.snapshot(func(inst *Instance) bool {
		return inst.Status == StatusActive
	})
	return active, nil
}

func (s *MemoryStore) ListByDocument(
	ctx context.Context,
	documentID uuid.UUID,
	page pagination.PageRequest,
) (*pagination.PageResult[Instance], error) {
	page.Normalize(s.pagination)

	matches := s.snapshot(func(inst *Instance) bool {
		return inst.DocumentID == documentID
	})

	sort.Slice(matches, func(a, b int) bool {
		return matches[a].CreatedAt.After(matches[b].CreatedAt)
	})

	total := len(matches)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}

	data := make([]Instance, 0, end-start)
	for _, inst := range matches[start:end] {
		data = append(data, *inst)
	}

	result := pagination.NewPageResult(data, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *MemoryStore) entry(id uuid.UUID) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, nil
}

func (s *MemoryStore) snapshot(match func(*Instance) bool) []*Instance {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Instance, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if match(e.inst) {
			out = append(out, e.inst.Clone())
		}
		e.mu.Unlock()
	}
	return out
}
