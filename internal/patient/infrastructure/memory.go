package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

type memoryState struct {
	patients   map[string]domain.Patient
	events     []domain.PatientEvent
	labTests   map[types.ID]domain.LabTest
	quarantine []domain.QuarantineIncident
	contacts   map[types.ID]domain.ExposureContact
	seq        int64
}

func newMemoryState() memoryState {
	return memoryState{
		patients: map[string]domain.Patient{},
		labTests: map[types.ID]domain.LabTest{},
		contacts: map[types.ID]domain.ExposureContact{},
	}
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		patients:   make(map[string]domain.Patient, len(s.patients)),
		events:     append([]domain.PatientEvent(nil), s.events...),
		labTests:   make(map[types.ID]domain.LabTest, len(s.labTests)),
		quarantine: append([]domain.QuarantineIncident(nil), s.quarantine...),
		contacts:   make(map[types.ID]domain.ExposureContact, len(s.contacts)),
		seq:        s.seq,
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.labTests {
		c.labTests[k] = v
	}
	for k, v := range s.contacts {
		c.contacts[k] = v
	}
	return c
}

// MemoryStore is an in-memory domain.Store. Transactions run one at a time
// on a copy of the state that replaces the original only on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

var _ domain.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// WithinTx runs fn against a working copy and commits it if fn succeeds
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) read() memoryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *MemoryStore) FindPatient(_ context.Context, id string) (*domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.patient(id)
}

func (s *MemoryStore) LatestEvent(_ context.Context, patientID string) (*domain.PatientEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Latest(s.state.history(patientID)), nil
}

func (s *MemoryStore) EventsFor(_ context.Context, patientID string) ([]domain.PatientEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.history(patientID), nil
}

func (s *MemoryStore) LatestEvents(_ context.Context, patientIDs []string) (map[string]domain.PatientEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.PatientEvent, len(patientIDs))
	for _, id := range patientIDs {
		if e := domain.Latest(s.state.history(id)); e != nil {
			out[id] = *e
		}
	}
	return out, nil
}

func (s *MemoryStore) FindPatients(_ context.Context, pred domain.Predicate, sortBy domain.Sort, page domain.Page) ([]domain.Patient, error) {
	s.mu.RLock()
	matches := s.state.matching(pred)
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return sortBy.Compare(&matches[i], &matches[j]) < 0
	})

	start := page.Skip()
	if start >= len(matches) {
		return []domain.Patient{}, nil
	}
	end := start + page.Size
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], nil
}

func (s *MemoryStore) CountPatients(_ context.Context, pred domain.Predicate) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.state.matching(pred))), nil
}

func (s *MemoryStore) FindLabTest(_ context.Context, id types.ID) (*domain.LabTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.labTest(id)
}

func (s *MemoryStore) LabTestsFor(_ context.Context, patientID string) ([]domain.LabTest, error) {
	st := s.read()
	tests := []domain.LabTest{}
	for _, lt := range st.labTests {
		if lt.PatientID == patientID {
			tests = append(tests, lt)
		}
	}
	sort.Slice(tests, func(i, j int) bool {
		if !tests[i].LastUpdate.Equal(tests[j].LastUpdate) {
			return tests[i].LastUpdate.Before(tests[j].LastUpdate)
		}
		return tests[i].ID < tests[j].ID
	})
	return tests, nil
}

func (s *MemoryStore) QuarantineIncidentsFor(_ context.Context, patientID string) ([]domain.QuarantineIncident, error) {
	st := s.read()
	incidents := []domain.QuarantineIncident{}
	for _, q := range st.quarantine {
		if q.PatientID == patientID {
			incidents = append(incidents, q)
		}
	}
	return incidents, nil
}

func (s *MemoryStore) FindExposureContact(_ context.Context, id types.ID) (*domain.ExposureContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.contact(id)
}

func (s *MemoryStore) ExposureContactsBySource(_ context.Context, patientID string) ([]domain.ExposureContact, error) {
	st := s.read()
	return st.contactsWhere(func(c domain.ExposureContact) bool { return c.SourcePatientID == patientID }), nil
}

func (s *MemoryStore) ExposureContactsByContact(_ context.Context, patientID string) ([]domain.ExposureContact, error) {
	st := s.read()
	return st.contactsWhere(func(c domain.ExposureContact) bool { return c.ContactPatientID == patientID }), nil
}

// --- state helpers ---

func (st *memoryState) patient(id string) (*domain.Patient, error) {
	p, ok := st.patients[id]
	if !ok {
		return nil, errors.NotFound("patient", id)
	}
	return &p, nil
}

func (st *memoryState) history(patientID string) []domain.PatientEvent {
	events := []domain.PatientEvent{}
	for _, e := range st.events {
		if e.PatientID == patientID {
			events = append(events, e)
		}
	}
	domain.SortEvents(events)
	return events
}

func (st *memoryState) labTest(id types.ID) (*domain.LabTest, error) {
	lt, ok := st.labTests[id]
	if !ok {
		return nil, errors.NotFound("lab test", id.String())
	}
	return &lt, nil
}

func (st *memoryState) contact(id types.ID) (*domain.ExposureContact, error) {
	c, ok := st.contacts[id]
	if !ok {
		return nil, errors.NotFound("exposure contact", id.String())
	}
	return &c, nil
}

func (st *memoryState) contactsWhere(keep func(domain.ExposureContact) bool) []domain.ExposureContact {
	contacts := []domain.ExposureContact{}
	for _, c := range st.contacts {
		if keep(c) {
			contacts = append(contacts, c)
		}
	}
	sort.Slice(contacts, func(i, j int) bool {
		if !contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
		}
		return contacts[i].ID < contacts[j].ID
	})
	return contacts
}

func (st *memoryState) matching(pred domain.Predicate) []domain.Patient {
	doctors := map[string][]string{}
	for _, e := range st.events {
		if e.ResponsibleDoctorID != nil {
			doctors[e.PatientID] = append(doctors[e.PatientID], e.ResponsibleDoctorID.String())
		}
	}
	labs := map[string][]string{}
	for _, lt := range st.labTests {
		labs[lt.PatientID] = append(labs[lt.PatientID], lt.LaboratoryID.String())
	}

	matches := []domain.Patient{}
	for id := range st.patients {
		p := st.patients[id]
		c := domain.Candidate{Patient: &p, DoctorIDs: doctors[id], LaboratoryIDs: labs[id]}
		if pred.Matches(c) {
			matches = append(matches, p)
		}
	}
	return matches
}

// --- Tx ---

type memTx struct {
	st *memoryState
}

func (t *memTx) LockPatient(_ context.Context, id string) (*domain.Patient, error) {
	return t.st.patient(id)
}

func (t *memTx) InsertPatient(_ context.Context, p *domain.Patient) error {
	if _, exists := t.st.patients[p.ID]; exists {
		return errors.Conflict("patient id " + p.ID + " already exists")
	}
	stored := *p
	stored.Events = nil
	t.st.patients[p.ID] = stored
	return nil
}

func (t *memTx) UpdatePatient(_ context.Context, p *domain.Patient) error {
	existing, ok := t.st.patients[p.ID]
	if !ok {
		return errors.NotFound("patient", p.ID)
	}
	existing.Status = p.Status
	existing.QuarantineUntil = p.QuarantineUntil
	existing.UpdatedAt = p.UpdatedAt
	t.st.patients[p.ID] = existing
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e *domain.PatientEvent) error {
	if _, ok := t.st.patients[e.PatientID]; !ok {
		return errors.NotFound("patient", e.PatientID)
	}
	t.st.seq++
	e.Seq = t.st.seq
	t.st.events = append(t.st.events, *e)
	return nil
}

func (t *memTx) LatestEvent(_ context.Context, patientID string) (*domain.PatientEvent, error) {
	return domain.Latest(t.st.history(patientID)), nil
}

func (t *memTx) EventsFor(_ context.Context, patientID string) ([]domain.PatientEvent, error) {
	return t.st.history(patientID), nil
}

func (t *memTx) LockLabTest(_ context.Context, id types.ID) (*domain.LabTest, error) {
	return t.st.labTest(id)
}

func (t *memTx) LockLabTestsByTestID(_ context.Context, testID string) ([]domain.LabTest, error) {
	tests := []domain.LabTest{}
	for _, lt := range t.st.labTests {
		if lt.TestID == testID {
			tests = append(tests, lt)
		}
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].ID < tests[j].ID })
	return tests, nil
}

func (t *memTx) InsertLabTest(_ context.Context, lt *domain.LabTest) error {
	for _, existing := range t.st.labTests {
		if existing.LaboratoryID == lt.LaboratoryID && existing.TestID == lt.TestID {
			return errors.Conflict("test " + lt.TestID + " already exists for this laboratory")
		}
	}
	if _, ok := t.st.patients[lt.PatientID]; !ok {
		return errors.NotFound("patient", lt.PatientID)
	}
	t.st.labTests[lt.ID] = *lt
	return nil
}

func (t *memTx) UpdateLabTest(_ context.Context, lt *domain.LabTest) error {
	existing, ok := t.st.labTests[lt.ID]
	if !ok {
		return errors.NotFound("lab test", lt.ID.String())
	}
	existing.Status = lt.Status
	existing.Comment = lt.Comment
	existing.Report = lt.Report
	existing.LastUpdate = lt.LastUpdate
	t.st.labTests[lt.ID] = existing
	return nil
}

func (t *memTx) LatestQuarantineIncident(_ context.Context, patientID string) (*domain.QuarantineIncident, error) {
	for i := len(t.st.quarantine) - 1; i >= 0; i-- {
		if q := t.st.quarantine[i]; q.PatientID == patientID {
			return &q, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertQuarantineIncident(_ context.Context, q *domain.QuarantineIncident) error {
	t.st.quarantine = append(t.st.quarantine, *q)
	return nil
}

func (t *memTx) LockExposureContact(_ context.Context, id types.ID) (*domain.ExposureContact, error) {
	return t.st.contact(id)
}

func (t *memTx) InsertExposureContact(_ context.Context, c *domain.ExposureContact) error {
	for _, id := range []string{c.SourcePatientID, c.ContactPatientID} {
		if _, ok := t.st.patients[id]; !ok {
			return errors.NotFound("patient", id)
		}
	}
	if _, exists := t.st.contacts[c.ID]; exists {
		return errors.Conflict("exposure contact already exists")
	}
	t.st.contacts[c.ID] = *c
	return nil
}

func (t *memTx) UpdateExposureContact(_ context.Context, c *domain.ExposureContact) error {
	existing, ok := t.st.contacts[c.ID]
	if !ok {
		return errors.NotFound("exposure contact", c.ID.String())
	}
	existing.DateOfContact = c.DateOfContact
	existing.Comment = c.Comment
	existing.UpdatedAt = c.UpdatedAt
	t.st.contacts[c.ID] = existing
	return nil
}

func (t *memTx) DeleteExposureContact(_ context.Context, id types.ID) error {
	if _, ok := t.st.contacts[id]; !ok {
		return errors.NotFound("exposure contact", id.String())
	}
	delete(t.st.contacts, id)
	return nil
}
