package institution

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// Handler provides HTTP handlers for the institution directory
type Handler struct {
	dir    Directory
	logger zerolog.Logger
}

// NewHandler creates a new institution handler
func NewHandler(dir Directory, logger zerolog.Logger) *Handler {
	return &Handler{dir: dir, logger: logger.With().Str("component", "institution").Logger()}
}

// Routes registers the institution routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/institutions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{institutionID}", h.Get)
	})

	return r
}

// List lists institutions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}

	if t := q.Get("type"); t != "" {
		typ := Type(t)
		if !typ.Valid() {
			writeError(w, errors.InvalidInput("type", "unknown institution type"))
			return
		}
		filter.Type = &typ
	}
	var err error
	if filter.Limit, err = countParam(q.Get("limit"), "limit"); err != nil {
		writeError(w, err)
		return
	}
	if filter.Offset, err = countParam(q.Get("offset"), "offset"); err != nil {
		writeError(w, err)
		return
	}

	institutions, total, err := h.dir.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  institutions,
		"total": total,
	})
}

// Get gets an institution by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "institutionID"))
	if err != nil {
		writeError(w, errors.InvalidInput("id", "invalid institution ID"))
		return
	}

	inst, err := h.dir.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inst)
}

// Create registers a new institution
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	inst, err := NewInstitution(req, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.dir.Create(r.Context(), inst); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info().Str("institution_id", inst.ID.String()).Str("type", string(inst.Type)).Msg("institution created")
	writeJSON(w, http.StatusCreated, inst)
}

// --- Helpers ---

// countParam parses an optional non-negative integer query parameter
func countParam(v, field string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidInput(field, field+" must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
