package dispatch

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// backlog is the shared FIFO of pending item ids. Each id appears at most once.
type backlog struct {
	ids   []string
	index mapset.Set[string]
}

func newBacklog() *backlog {
	return &backlog{index: mapset.NewThreadUnsafeSet[string]()}
}

func (b *backlog) len() int {
	return len(b.ids)
}

func (b *backlog) contains(id string) bool {
	return b.index.Contains(id)
}

// pushBack appends id unless it is already queued.
func (b *backlog) pushBack(id string) bool {
	if !b.index.Add(id) {
		return false
	}
	b.ids = append(b.ids, id)
	return true
}

// requeueFront puts id at the head, moving it there if already queued.
func (b *backlog) requeueFront(id string) {
	if b.index.Contains(id) {
		b.remove(id)
	}
	b.index.Add(id)
	b.ids = slices.Insert(b.ids, 0, id)
}

// dequeue pops the oldest id not in skip.
func (b *backlog) dequeue(skip mapset.Set[string]) (string, bool) {
	for i, id := range b.ids {
		if skip != nil && skip.Contains(id) {
			continue
		}
		b.ids = slices.Delete(b.ids, i, i+1)
		b.index.Remove(id)
		return id, true
	}
	return "", false
}

func (b *backlog) remove(id string) bool {
	if !b.index.Contains(id) {
		return false
	}
	b.index.Remove(id)
	if i := slices.Index(b.ids, id); i >= 0 {
		b.ids = slices.Delete(b.ids, i, i+1)
	}
	return true
}

func (b *backlog) snapshot() []string {
	return slices.Clone(b.ids)
}
