package realm

import "sort"

// Cursor is a peer's last known labelled position.
type Cursor struct {
	ID    uint32
	Name  string
	X     uint16
	Y     uint16
	Realm uint32
}

// Registry maps peer ids to cursors.
type Registry struct {
	cursors map[uint32]Cursor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cursors: make(map[uint32]Cursor)}
}

// Set creates or overwrites the entry for c.ID.
func (r *Registry) Set(c Cursor) {
	r.cursors[c.ID] = c
}

// Remove deletes the entry for id and reports whether it existed.
func (r *Registry) Remove(id uint32) bool {
	if _, ok := r.cursors[id]; !ok {
		return false
	}
	delete(r.cursors, id)
	return true
}

// Get returns the entry for id.
func (r *Registry) Get(id uint32) (Cursor, bool) {
	c, ok := r.cursors[id]
	return c, ok
}

// Clear removes every entry.
func (r *Registry) Clear() {
	clear(r.cursors)
}

// Len returns the number of cursors.
func (r *Registry) Len() int {
	return len(r.cursors)
}

// List returns the cursors ordered by id.
func (r *Registry) List() []Cursor {
	out := make([]Cursor, 0, len(r.cursors))
	for _, c := range r.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
