package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/slot"
)

// memStore mimics the Postgres store closely enough for concurrency tests: rows
// are locked on first touch and held until the transaction ends, and writes are
// staged and only become visible on commit.
type memStore struct {
	mu     sync.Mutex
	slots  map[uuid.UUID]slot.TimeSlot
	appts  map[uuid.UUID]Appointment
	events []EventLog

	locksMu  sync.Mutex
	rowLocks map[uuid.UUID]*sync.Mutex

	failInsert  error
	failRelease error
}

func newMemStore() *memStore {
	return &memStore{
		slots:    make(map[uuid.UUID]slot.TimeSlot),
		appts:    make(map[uuid.UUID]Appointment),
		rowLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *memStore) addSlot(s slot.TimeSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[s.ID] = s
}

func (m *memStore) slotByID(id uuid.UUID) slot.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[id]
}

func (m *memStore) appointment(id uuid.UUID) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appts[id]
}

func (m *memStore) bookedFor(slotID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appts {
		if a.SlotID == slotID && a.Status == StatusBooked {
			n++
		}
	}
	return n
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memStore) lockFor(id uuid.UUID) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[id] = l
	}
	return l
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{store: m, held: make(map[uuid.UUID]*sync.Mutex)}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	for _, apply := range tx.staged {
		apply()
	}
	m.mu.Unlock()
	return nil
}

func (m *memStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	b := m.bookingLocked(a)
	return &b, nil
}

func (m *memStore) bookingLocked(a Appointment) Booking {
	s := m.slots[a.SlotID]
	return Booking{Appointment: a, Date: s.Date, StartTime: s.StartTime, EndTime: s.EndTime}
}

func (m *memStore) filter(keep func(a Appointment, s slot.TimeSlot) bool, newestFirst bool) []Booking {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Booking
	for _, a := range m.appts {
		if keep(a, m.slots[a.SlotID]) {
			out = append(out, m.bookingLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki := out[i].Date.Format(time.DateOnly) + out[i].StartTime
		kj := out[j].Date.Format(time.DateOnly) + out[j].StartTime
		if newestFirst {
			return ki > kj
		}
		return ki < kj
	})
	return out
}

func (m *memStore) ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) ([]Booking, error) {
	return m.filter(func(a Appointment, s slot.TimeSlot) bool {
		return a.PatientID == patientID && a.Status == StatusBooked && !s.Date.Before(from)
	}, false), nil
}

func (m *memStore) ListHistoryForPatient(ctx context.Context, patientID uuid.UUID) ([]Booking, error) {
	return m.filter(func(a Appointment, s slot.TimeSlot) bool {
		return a.PatientID == patientID
	}, true), nil
}

func (m *memStore) ListUpcomingForDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Booking, error) {
	return m.filter(func(a Appointment, s slot.TimeSlot) bool {
		return a.DoctorID == doctorID && a.Status == StatusBooked && !s.Date.Before(from)
	}, false), nil
}

func (m *memStore) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]slot.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []slot.TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Available && !s.Date.Before(from) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Format(time.DateOnly)+out[i].StartTime < out[j].Date.Format(time.DateOnly)+out[j].StartTime
	})
	return out, nil
}

type memTx struct {
	store  *memStore
	held   map[uuid.UUID]*sync.Mutex
	staged []func()
}

func (t *memTx) lock(id uuid.UUID) {
	if _, ok := t.held[id]; ok {
		return
	}
	l := t.store.lockFor(id)
	l.Lock()
	t.held[id] = l
}

func (t *memTx) releaseLocks() {
	for _, l := range t.held {
		l.Unlock()
	}
}

func (t *memTx) ClaimSlot(ctx context.Context, slotID uuid.UUID) (*slot.TimeSlot, error) {
	t.lock(slotID)

	t.store.mu.Lock()
	s, ok := t.store.slots[slotID]
	t.store.mu.Unlock()
	if !ok || !s.Available {
		return nil, slot.ErrUnavailable
	}

	t.staged = append(t.staged, func() {
		s := t.store.slots[slotID]
		s.Available = false
		t.store.slots[slotID] = s
	})
	s.Available = false
	return &s, nil
}

func (t *memTx) ReleaseSlot(ctx context.Context, slotID uuid.UUID) error {
	if t.store.failRelease != nil {
		return t.store.failRelease
	}
	t.lock(slotID)

	t.store.mu.Lock()
	_, ok := t.store.slots[slotID]
	t.store.mu.Unlock()
	if !ok {
		return slot.ErrNotFound
	}

	t.staged = append(t.staged, func() {
		s := t.store.slots[slotID]
		s.Available = true
		t.store.slots[slotID] = s
	})
	return nil
}

func (t *memTx) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if t.store.failInsert != nil {
		return nil, t.store.failInsert
	}
	a.ID = uuid.New()
	a.Status = StatusBooked
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt

	t.staged = append(t.staged, func() { t.store.appts[a.ID] = a })
	return &a, nil
}

func (t *memTx) MarkCanceled(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	t.lock(id)

	t.store.mu.Lock()
	a, ok := t.store.appts[id]
	t.store.mu.Unlock()
	if !ok || a.Status != StatusBooked {
		return nil, ErrAlreadyCanceled
	}

	now := time.Now()
	a.Status = StatusCanceled
	a.CanceledAt = &now
	a.UpdatedAt = now

	t.staged = append(t.staged, func() { t.store.appts[id] = a })
	return &a, nil
}

func (t *memTx) InsertEvent(ctx context.Context, ev EventLog) error {
	t.staged = append(t.staged, func() { t.store.events = append(t.store.events, ev) })
	return nil
}
