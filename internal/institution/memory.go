package institution

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// MemoryDirectory is an in-process Directory for tests and local runs
type MemoryDirectory struct {
	mu    sync.RWMutex
	items map[types.ID]Institution
}

// NewMemoryDirectory creates a directory seeded with institutions
func NewMemoryDirectory(seed ...Institution) *MemoryDirectory {
	d := &MemoryDirectory{items: make(map[types.ID]Institution, len(seed))}
	for _, inst := range seed {
		d.items[inst.ID] = inst
	}
	return d
}

func (d *MemoryDirectory) Get(_ context.Context, id types.ID) (*Institution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	inst, ok := d.items[id]
	if !ok {
		return nil, errors.NotFound("institution", id.String())
	}
	return &inst, nil
}

func (d *MemoryDirectory) List(_ context.Context, filter ListFilter) ([]Institution, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	matches := []Institution{}
	for _, inst := range d.items {
		if filter.Type != nil && inst.Type != *filter.Type {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(inst.Name), search) &&
			!strings.Contains(strings.ToLower(inst.Address.City), search) {
			continue
		}
		matches = append(matches, inst)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Name != matches[j].Name {
			return matches[i].Name < matches[j].Name
		}
		return matches[i].ID < matches[j].ID
	})

	total := len(matches)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.limit()
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func (d *MemoryDirectory) Create(_ context.Context, inst *Institution) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.items[inst.ID]; exists {
		return errors.Conflict("institution already exists")
	}
	d.items[inst.ID] = *inst
	return nil
}
