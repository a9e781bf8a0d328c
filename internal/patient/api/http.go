package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/imis-health/casetracker/internal/institution"
	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/patient/service"
	"github.com/imis-health/casetracker/internal/shared/auth"
	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// Handler provides HTTP handlers for patients and lab tests
type Handler struct {
	svc    *service.Service
	logger zerolog.Logger
}

// NewHandler creates a new patient handler
func NewHandler(svc *service.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "patient_api").Logger()}
}

// Routes registers the patient routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreatePatient)

	// Search
	r.Post("/query", h.QueryPatients)
	r.Post("/query/count", h.CountQueryPatients)
	r.Get("/search", h.SearchPatients)
	r.Get("/search/count", h.CountSearchPatients)

	r.Route("/{patientID}", func(r chi.Router) {
		r.Get("/", h.GetPatient)

		// Ledger
		r.Get("/events", h.GetEvents)
		r.Get("/events/latest", h.GetLatestEvent)
		r.Post("/events", h.RecordEvent)

		r.Post("/quarantine", h.SendToQuarantine)
		r.Get("/quarantine", h.GetQuarantineIncidents)
		r.Get("/labtests", h.GetLabTests)
	})

	return r
}

// LabTestRoutes registers the lab test routes
func (h *Handler) LabTestRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.RegisterLabTest)
	r.Put("/results", h.IngestLabResult)
	r.Get("/{labTestID}", h.GetLabTest)

	return r
}

// ExposureContactRoutes registers the exposure contact routes
func (h *Handler) ExposureContactRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateExposureContact)
	r.Get("/by-source/{patientID}", h.GetContactsOf)
	r.Get("/by-contact/{patientID}", h.GetSourcesOf)
	r.Get("/{contactID}", h.GetExposureContact)
	r.Put("/{contactID}", h.UpdateExposureContact)
	r.Delete("/{contactID}", h.RemoveExposureContact)

	return r
}

// --- Request types ---

type QuarantineRequest struct {
	Until   string `json:"until"`
	Comment string `json:"comment"`
}

// --- Patients ---

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req domain.Demographics
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.svc.CreatePatient(r.Context(), actorFrom(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.FindPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) SendToQuarantine(w http.ResponseWriter, r *http.Request) {
	var req QuarantineRequest
	if !h.decode(w, r, &req) {
		return
	}

	until, err := domain.ParseDate("until", req.Until)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if until == nil {
		h.writeError(w, r, errors.InvalidInput("until", "until is required"))
		return
	}

	p, err := h.svc.SendToQuarantine(r.Context(), actorFrom(r), chi.URLParam(r, "patientID"), *until, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req service.EventRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.svc.RecordEvent(r.Context(), actorFrom(r), chi.URLParam(r, "patientID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.EventsFor(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) GetLatestEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.LatestEventFor(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if e == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) GetQuarantineIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.svc.QuarantineIncidentsFor(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (h *Handler) GetLabTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.svc.LabTestsFor(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

// --- Search ---

func (h *Handler) QueryPatients(w http.ResponseWriter, r *http.Request) {
	var c domain.Criteria
	if !h.decode(w, r, &c) {
		return
	}

	page, err := h.svc.QueryPatientsWithCount(r.Context(), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) CountQueryPatients(w http.ResponseWriter, r *http.Request) {
	var c domain.Criteria
	if !h.decode(w, r, &c) {
		return
	}

	count, err := h.svc.CountQueryPatients(r.Context(), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.SimpleQuery{
		Query:   q.Get("query"),
		OrderBy: q.Get("orderBy"),
		Order:   q.Get("order"),
	}

	var err error
	if query.OffsetPage, err = intParam(q.Get("offsetPage"), "offsetPage"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if query.PageSize, err = intParam(q.Get("pageSize"), "pageSize"); err != nil {
		h.writeError(w, r, err)
		return
	}
	query.IncludePatientEvents, _ = strconv.ParseBool(q.Get("includePatientEvents"))

	patients, err := h.svc.QueryPatientsSimple(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *Handler) CountSearchPatients(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.QueryPatientsSimpleCount(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// --- Lab tests ---

func (h *Handler) RegisterLabTest(w http.ResponseWriter, r *http.Request) {
	var req service.LabTestRegistration
	if !h.decode(w, r, &req) {
		return
	}

	lt, err := h.svc.RegisterLabTest(r.Context(), actorFrom(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lt)
}

func (h *Handler) IngestLabResult(w http.ResponseWriter, r *http.Request) {
	var req service.LabResult
	if !h.decode(w, r, &req) {
		return
	}

	lt, err := h.svc.IngestLabResult(r.Context(), actorFrom(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lt)
}

func (h *Handler) GetLabTest(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "labTestID"))
	if err != nil {
		h.writeError(w, r, errors.InvalidInput("id", "invalid lab test ID"))
		return
	}

	lt, err := h.svc.FindLabTest(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lt)
}

// --- Exposure contacts ---

func (h *Handler) CreateExposureContact(w http.ResponseWriter, r *http.Request) {
	var req service.ContactRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.svc.RecordExposureContact(r.Context(), actorFrom(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateExposureContact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}
	var req domain.ContactDetails
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.svc.UpdateExposureContact(r.Context(), actorFrom(r), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetExposureContact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}

	c, err := h.svc.FindExposureContact(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) RemoveExposureContact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}

	if err := h.svc.RemoveExposureContact(r.Context(), actorFrom(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetContactsOf(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.svc.ContactsOf(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *Handler) GetSourcesOf(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.svc.SourcesOf(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// --- Helpers ---

func (h *Handler) contactID(w http.ResponseWriter, r *http.Request) (types.ID, bool) {
	id, err := types.ParseID(chi.URLParam(r, "contactID"))
	if err != nil {
		h.writeError(w, r, errors.InvalidInput("id", "invalid exposure contact ID"))
		return "", false
	}
	return id, true
}

// actorFrom maps the authenticated user to the acting institution. Without
// authentication every call is a self-registration.
func actorFrom(r *http.Request) service.Actor {
	user := auth.GetUser(r.Context())
	if user == nil {
		return service.Actor{}
	}
	return service.Actor{
		UserID:          user.ID,
		InstitutionID:   user.InstitutionID.Ptr(),
		InstitutionType: institution.Type(user.InstitutionType),
	}
}

func intParam(v, field string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.InvalidInput(field, field+" must be an integer")
	}
	return n, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	h.logger.Error().Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
