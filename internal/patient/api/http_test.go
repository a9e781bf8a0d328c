package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imis-health/casetracker/internal/institution"
	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/patient/infrastructure"
	"github.com/imis-health/casetracker/internal/patient/service"
	"github.com/imis-health/casetracker/internal/shared/auth"
	"github.com/imis-health/casetracker/internal/shared/config"
	"github.com/imis-health/casetracker/internal/shared/types"
)

type testServer struct {
	router http.Handler
	lab    institution.Institution
	doctor institution.Institution
	user   *auth.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		lab:    institution.Institution{ID: types.NewID(), Name: "Labor Berlin", Type: institution.TypeLaboratory},
		doctor: institution.Institution{ID: types.NewID(), Name: "Praxis Dr. Muster", Type: institution.TypeDoctorsOffice},
	}
	dir := institution.NewMemoryDirectory(ts.lab, ts.doctor)
	svc := service.New(infrastructure.NewMemoryStore(), dir, config.QueryConfig{DefaultPageSize: 20, MaxPageSize: 100}, zerolog.Nop())
	h := NewHandler(svc, zerolog.Nop())

	r := chi.NewRouter()
	// stands in for the JWT middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ts.user != nil {
				r = r.WithContext(auth.WithUser(r.Context(), ts.user))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Mount("/patients", h.Routes())
	r.Mount("/labtests", h.LabTestRoutes())
	r.Mount("/exposure-contacts", h.ExposureContactRoutes())
	ts.router = r
	return ts
}

func (ts *testServer) actAs(inst institution.Institution) {
	ts.user = &auth.User{ID: types.NewID(), InstitutionID: inst.ID, InstitutionType: string(inst.Type)}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(context.Background())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestPatientLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.actAs(ts.doctor)

	rec := ts.do(t, http.MethodPost, "/patients", map[string]string{
		"firstName":       "Anna",
		"lastName":        "Muster",
		"zip":             "10115",
		"dateOfReporting": "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[domain.Patient](t, rec)
	assert.Equal(t, domain.StatusSuspected, created.Status)
	require.Len(t, created.Events, 1)

	rec = ts.do(t, http.MethodPost, "/patients/"+created.ID+"/quarantine", QuarantineRequest{Until: "2025-12-31", Comment: "contact tracing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quarantined := decodeBody[domain.Patient](t, rec)
	assert.Equal(t, domain.StatusQuarantined, quarantined.Status)
	require.NotNil(t, quarantined.QuarantineUntil)
	assert.Equal(t, "2025-12-31", quarantined.QuarantineUntil.Format(domain.DateLayout))

	rec = ts.do(t, http.MethodGet, "/patients/"+created.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[[]domain.PatientEvent](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventSuspected, events[0].Type)
	assert.Equal(t, domain.EventQuarantined, events[1].Type)

	rec = ts.do(t, http.MethodGet, "/patients/"+created.ID+"/events/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.EventQuarantined, decodeBody[domain.PatientEvent](t, rec).Type)

	rec = ts.do(t, http.MethodGet, "/patients/"+created.ID+"/quarantine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.QuarantineIncident](t, rec), 1)

	rec = ts.do(t, http.MethodPost, "/patients/"+created.ID+"/events", service.EventRequest{Type: domain.EventRecovered})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusRecovered, decodeBody[domain.Patient](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/patients/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusRecovered, decodeBody[domain.Patient](t, rec).Status)
}

func TestLabTestsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.actAs(ts.doctor)
	rec := ts.do(t, http.MethodPost, "/patients", map[string]string{"firstName": "Max", "lastName": "Muster"})
	require.Equal(t, http.StatusCreated, rec.Code)
	patient := decodeBody[domain.Patient](t, rec)

	ts.actAs(ts.lab)
	rec = ts.do(t, http.MethodPost, "/labtests", service.LabTestRegistration{TestID: "PCR-1", PatientID: patient.ID, TestType: domain.TestTypePCR})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lt := decodeBody[domain.LabTest](t, rec)

	rec = ts.do(t, http.MethodPost, "/labtests", service.LabTestRegistration{TestID: "PCR-1", PatientID: patient.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPut, "/labtests/results", service.LabResult{TestID: "PCR-1", Status: domain.TestStatusFinishedPositive})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.TestStatusFinishedPositive, decodeBody[domain.LabTest](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/labtests/"+lt.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/patients/"+patient.ID+"/labtests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.LabTest](t, rec), 1)

	rec = ts.do(t, http.MethodPut, "/labtests/results", service.LabResult{TestID: "UNKNOWN", Status: domain.TestStatusFinishedPositive})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/labtests/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	for _, name := range [][2]string{{"John", "Doe"}, {"Jane", "Doe"}, {"John", "Smith"}} {
		rec := ts.do(t, http.MethodPost, "/patients", map[string]string{"firstName": name[0], "lastName": name[1]})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/patients/query", domain.Criteria{LastName: "doe", OrderBy: "firstName", Order: "desc", IncludePatientEvents: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeBody[service.PatientPage](t, rec)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "John", page.Data[0].FirstName)
	assert.Len(t, page.Data[0].Events, 1)

	rec = ts.do(t, http.MethodPost, "/patients/query/count", domain.Criteria{FirstName: "john"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody[map[string]int64](t, rec)["count"])

	rec = ts.do(t, http.MethodGet, "/patients/search?query=john+doe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.Patient](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/patients/search/count?query=doe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody[map[string]int64](t, rec)["count"])

	rec = ts.do(t, http.MethodGet, "/patients/search?query=doe&offsetPage=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/patients/search?query=doe&pageSize=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/patients/search?query=doe&pageSize=10&offsetPage=922337203685477581", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/patients/query", domain.Criteria{OrderBy: "secret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorsOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/patients/NOPE0000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/patients/NOPE0000/quarantine", QuarantineRequest{Until: "31.12.2025"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/patients/NOPE0000/quarantine", QuarantineRequest{Until: time.Now().Format(domain.DateLayout)})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/patients", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody[map[string]any](t, rec)["code"])
}

func TestExposureContactsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.actAs(ts.doctor)

	ids := make([]string, 3)
	for i, name := range []string{"Anna", "Ben", "Carla"} {
		rec := ts.do(t, http.MethodPost, "/patients", map[string]string{"firstName": name, "lastName": "Muster"})
		require.Equal(t, http.StatusCreated, rec.Code)
		ids[i] = decodeBody[domain.Patient](t, rec).ID
	}
	anna, ben, carla := ids[0], ids[1], ids[2]

	rec := ts.do(t, http.MethodPost, "/exposure-contacts", map[string]string{
		"sourcePatientId":  anna,
		"contactPatientId": ben,
		"dateOfContact":    "2025-06-01",
		"comment":          "same household",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	contact := decodeBody[domain.ExposureContact](t, rec)
	require.NotNil(t, contact.DateOfContact)
	assert.Equal(t, "2025-06-01", contact.DateOfContact.Format(domain.DateLayout))

	rec = ts.do(t, http.MethodPost, "/exposure-contacts", map[string]string{"sourcePatientId": carla, "contactPatientId": ben})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/exposure-contacts/by-source/"+anna, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bySource := decodeBody[[]domain.ExposureContact](t, rec)
	require.Len(t, bySource, 1)
	assert.Equal(t, ben, bySource[0].ContactPatientID)

	rec = ts.do(t, http.MethodGet, "/exposure-contacts/by-contact/"+ben, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.ExposureContact](t, rec), 2)

	rec = ts.do(t, http.MethodPut, "/exposure-contacts/"+contact.ID.String(), domain.ContactDetails{DateOfContact: "2025-05-30", Comment: "dinner"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "dinner", decodeBody[domain.ExposureContact](t, rec).Comment)

	rec = ts.do(t, http.MethodGet, "/exposure-contacts/"+contact.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-05-30", decodeBody[domain.ExposureContact](t, rec).DateOfContact.Format(domain.DateLayout))

	rec = ts.do(t, http.MethodDelete, "/exposure-contacts/"+contact.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/exposure-contacts/"+contact.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/exposure-contacts/"+contact.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/exposure-contacts/by-source/NOPE0000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPost, "/exposure-contacts", map[string]string{"sourcePatientId": anna, "contactPatientId": "NOPE0000"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPost, "/exposure-contacts", map[string]string{"sourcePatientId": anna, "contactPatientId": anna})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/exposure-contacts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
