package memstore

import (
	"context"
	"sync"

	"github.com/nyumbahub/rentals/internal/catalog"
	"github.com/nyumbahub/rentals/internal/notification"
	"github.com/nyumbahub/rentals/internal/reconcile"
)

type reminderKey struct {
	subjectType string
	subjectID   int64
	kind        string
}

// ReminderStore implements reconcile.ReminderStore
type ReminderStore struct {
	mu   sync.Mutex
	sent map[reminderKey]reconcile.Reminder
}

// NewReminderStore creates an empty reminder log
func NewReminderStore() *ReminderStore {
	return &ReminderStore{sent: make(map[reminderKey]reconcile.Reminder)}
}

func keyOf(r reconcile.Reminder) reminderKey {
	return reminderKey{r.SubjectType, r.SubjectID, r.Kind}
}

// Claim records r unless it is already recorded
func (s *ReminderStore) Claim(_ context.Context, r reconcile.Reminder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sent[keyOf(r)]; ok {
		return false, nil
	}
	s.sent[keyOf(r)] = r
	return true, nil
}

// Exists reports whether r is recorded
func (s *ReminderStore) Exists(_ context.Context, r reconcile.Reminder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sent[keyOf(r)]
	return ok, nil
}

// Release forgets r
func (s *ReminderStore) Release(_ context.Context, r reconcile.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sent, keyOf(r))
	return nil
}

// Catalog is an in-memory unit catalog
type Catalog struct {
	mu       sync.Mutex
	owners   map[int64]int64
	occupied map[int64]bool
}

// NewCatalog creates a catalog with no units
func NewCatalog() *Catalog {
	return &Catalog{owners: make(map[int64]int64), occupied: make(map[int64]bool)}
}

// AddUnit registers a vacant unit owned by ownerID
func (c *Catalog) AddUnit(unitID, ownerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[unitID] = ownerID
	c.occupied[unitID] = false
}

// UnitOwner returns the owner of a unit
func (c *Catalog) UnitOwner(_ context.Context, unitID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[unitID]
	if !ok {
		return 0, catalog.ErrUnitNotFound
	}
	return owner, nil
}

// SetOccupied flags a unit as occupied or vacant
func (c *Catalog) SetOccupied(_ context.Context, unitID int64, occupied bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owners[unitID]; !ok {
		return catalog.ErrUnitNotFound
	}
	c.occupied[unitID] = occupied
	return nil
}

// Occupied reports the occupancy flag of a unit
func (c *Catalog) Occupied(unitID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.occupied[unitID]
}

// Sent is a dispatched notification
type Sent struct {
	Event     notification.EventType
	Recipient int64
	Payload   notification.Payload
}

// Dispatcher records notifications instead of delivering them
type Dispatcher struct {
	mu   sync.Mutex
	sent []Sent
}

// Send records the notification
func (d *Dispatcher) Send(_ context.Context, eventType notification.EventType, recipientID int64, payload notification.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, Sent{Event: eventType, Recipient: recipientID, Payload: payload})
	return nil
}

// Sent returns everything dispatched so far
func (d *Dispatcher) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sent(nil), d.sent...)
}

// Count returns how many notifications of the event type were sent
func (d *Dispatcher) Count(eventType notification.EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sent {
		if s.Event == eventType {
			n++
		}
	}
	return n
}

// Reset forgets recorded notifications
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}
