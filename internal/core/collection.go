package core

import (
	"fmt"
	"strings"
	"sync"
)

// Collection is an ordered, id-keyed set of shipment records.
// It is safe for concurrent use; every mutation goes through a per-record
// operation rather than whole-collection replacement.
type Collection struct {
	mu     sync.RWMutex
	order  []int
	byID   map[int]*ShipmentRecord
	nextID int
}

// NewCollection returns an empty collection. Ids start at 1.
func NewCollection() *Collection {
	return &Collection{
		byID:   make(map[int]*ShipmentRecord),
		nextID: 1,
	}
}

// Load appends records, assigning each a fresh id, and returns the ids.
func (c *Collection) Load(records []ShipmentRecord) []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int, len(records))
	for i, rec := range records {
		rec.ID = c.nextID
		c.nextID++
		if rec.State == "" {
			rec.State = StatePending
		}
		r := rec
		c.byID[r.ID] = &r
		c.order = append(c.order, r.ID)
		ids[i] = r.ID
	}
	return ids
}

// Reset discards every record. Ids are not reused afterwards.
func (c *Collection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = nil
	c.byID = make(map[int]*ShipmentRecord)
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Get returns a copy of one record.
func (c *Collection) Get(id int) (ShipmentRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.byID[id]
	if !ok {
		return ShipmentRecord{}, false
	}
	return r.clone(), true
}

// List returns copies of all records in collection order.
func (c *Collection) List() []ShipmentRecord {
	return c.filter(func(*ShipmentRecord) bool { return true })
}

// SelectedRecords returns copies of the selected records in collection order.
func (c *Collection) SelectedRecords() []ShipmentRecord {
	return c.filter(func(r *ShipmentRecord) bool { return r.Selected })
}

// SelectedIDs returns the ids of the selected records in collection order.
func (c *Collection) SelectedIDs() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []int
	for _, id := range c.order {
		if c.byID[id].Selected {
			ids = append(ids, id)
		}
	}
	return ids
}

// Selected returns how many records are selected.
func (c *Collection) Selected() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, r := range c.byID {
		if r.Selected {
			n++
		}
	}
	return n
}

// Update applies fn to one record under the collection lock.
// The record's id and raw row cannot be changed by fn.
func (c *Collection) Update(id int, fn func(*ShipmentRecord)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}
	raw := r.Raw
	fn(r)
	r.ID = id
	r.Raw = raw
	return nil
}

// SetField edits one canonical field. The transport mode is not recomputed.
func (c *Collection) SetField(id int, field CanonicalField, value string) error {
	value = strings.TrimSpace(value)

	var set func(*ShipmentRecord)
	switch field {
	case FieldTrackingNumber:
		set = func(r *ShipmentRecord) { r.TrackingNumber = value }
	case FieldCarrier:
		set = func(r *ShipmentRecord) { r.Carrier = value }
	case FieldSystemETA:
		if value == "" {
			value = NotAvailable
		}
		set = func(r *ShipmentRecord) { r.SystemETA = value }
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return c.Update(id, set)
}

// ToggleSelect flips a record's selection and returns the new value.
func (c *Collection) ToggleSelect(id int) (bool, error) {
	var selected bool
	err := c.Update(id, func(r *ShipmentRecord) {
		r.Selected = !r.Selected
		selected = r.Selected
	})
	return selected, err
}

// SetSelected sets a record's selection.
func (c *Collection) SetSelected(id int, selected bool) error {
	return c.Update(id, func(r *ShipmentRecord) { r.Selected = selected })
}

// SelectAll sets the selection of every record.
func (c *Collection) SelectAll(selected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.byID {
		r.Selected = selected
	}
}

// Delete removes one record.
func (c *Collection) Delete(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[id]; !ok {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}
	delete(c.byID, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Collection) filter(keep func(*ShipmentRecord) bool) []ShipmentRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ShipmentRecord, 0, len(c.order))
	for _, id := range c.order {
		if r := c.byID[id]; keep(r) {
			out = append(out, r.clone())
		}
	}
	return out
}

func (r *ShipmentRecord) clone() ShipmentRecord {
	cp := *r
	cp.Raw = r.Raw.Clone()
	return cp
}
