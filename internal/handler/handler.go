package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"labelcomposer/internal/codec"
	"labelcomposer/internal/domain"
	"labelcomposer/internal/service"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 8 << 20

// SchemeHandler handles scheme API requests
type SchemeHandler struct {
	svc    *service.SchemeService
	logger *slog.Logger
}

// NewSchemeHandler creates a new scheme handler
func NewSchemeHandler(svc *service.SchemeService, logger *slog.Logger) *SchemeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemeHandler{svc: svc, logger: logger}
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SchemeResponse is a stored scheme in document form
type SchemeResponse struct {
	Scheme *codec.Document `json:"scheme"`
	Source string          `json:"source"`
}

// AtomRequest adds an atom to a scheme
type AtomRequest struct {
	Name  string `json:"name"`
	Index *int   `json:"index,omitempty"`
}

// LabelRequest adds a label to a scheme
type LabelRequest struct {
	Name  string   `json:"name,omitempty"`
	Atoms []string `json:"atoms"`
}

// CanComputeRequest asks whether a set of atoms, or a named label, can be
// derived. From names the scheme the label is looked up in and defaults to
// the queried scheme.
type CanComputeRequest struct {
	Atoms []string `json:"atoms,omitempty"`
	Label string   `json:"label,omitempty"`
	From  string   `json:"from,omitempty"`
}

// CanComputeResponse answers a CanComputeRequest
type CanComputeResponse struct {
	Scheme     string `json:"scheme"`
	Computable bool   `json:"computable"`
}

// MutationResponse reports whether a mutation changed the scheme
type MutationResponse struct {
	Scheme string `json:"scheme"`
	Added  bool   `json:"added"`
}

// CompatibleResponse lists schemes over the same universe
type CompatibleResponse struct {
	Scheme     string   `json:"scheme"`
	Compatible []string `json:"compatible"`
}

var contentTypes = map[string]string{
	"yaml": "application/x-yaml",
	"json": "application/json",
	"toml": "application/toml",
}

// ListSchemes returns summaries of all schemes
func (h *SchemeHandler) ListSchemes(w http.ResponseWriter, r *http.Request) {
	schemes, err := h.svc.ListSchemes(r.Context())
	if err != nil {
		h.fail(w, "Failed to list schemes", err)
		return
	}

	writeJSON(w, schemes, http.StatusOK)
}

// CreateScheme imports a scheme document. The format query parameter picks
// the codec (default json); replace=true overwrites an existing scheme.
func (h *SchemeHandler) CreateScheme(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	replace, _ := strconv.ParseBool(r.URL.Query().Get("replace"))

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "Failed to read request body", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.svc.Import(r.Context(), data, format, service.SourceAPI, replace)
	if err != nil {
		h.fail(w, "Failed to import scheme", err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, result, status)
}

// GetScheme returns a scheme definition
func (h *SchemeHandler) GetScheme(w http.ResponseWriter, r *http.Request) {
	scheme, source, err := h.svc.Scheme(r.PathValue("name"))
	if err != nil {
		h.fail(w, "Failed to get scheme", err)
		return
	}

	writeJSON(w, SchemeResponse{Scheme: codec.NewDocument(scheme), Source: source}, http.StatusOK)
}

// DeleteScheme removes a scheme
func (h *SchemeHandler) DeleteScheme(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteScheme(r.Context(), r.PathValue("name")); err != nil {
		h.fail(w, "Failed to delete scheme", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddAtom extends a scheme's universe
func (h *SchemeHandler) AddAtom(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req AtomRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		atom domain.AtomicLabel
		err  error
	)
	if req.Index != nil {
		atom, err = domain.NewIndexedAtomicLabel(req.Name, *req.Index)
	} else {
		atom, err = domain.NewAtomicLabel(req.Name)
	}
	if err != nil {
		h.fail(w, "Invalid atom", err)
		return
	}

	added, err := h.svc.AddAtom(r.Context(), name, atom)
	if err != nil {
		h.fail(w, "Failed to add atom", err)
		return
	}

	writeJSON(w, MutationResponse{Scheme: name, Added: added}, mutationStatus(added))
}

// AddLabel registers a label
func (h *SchemeHandler) AddLabel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req LabelRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Atoms) == 0 {
		writeError(w, "Invalid label", "atoms are required", http.StatusBadRequest)
		return
	}

	added, err := h.svc.AddLabel(r.Context(), name, req.Name, req.Atoms)
	if err != nil {
		h.fail(w, "Failed to add label", err)
		return
	}

	writeJSON(w, MutationResponse{Scheme: name, Added: added}, mutationStatus(added))
}

// CanCompute answers a reachability query
func (h *SchemeHandler) CanCompute(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req CanComputeRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		ok  bool
		err error
	)
	switch {
	case req.Label != "" && len(req.Atoms) > 0:
		writeError(w, "Invalid query", "give either atoms or label, not both", http.StatusBadRequest)
		return
	case req.Label != "":
		ok, err = h.svc.CanComputeLabel(name, req.From, req.Label)
	case len(req.Atoms) > 0:
		ok, err = h.svc.CanCompute(name, req.Atoms)
	default:
		writeError(w, "Invalid query", "atoms or label is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.fail(w, "Failed to evaluate query", err)
		return
	}

	writeJSON(w, CanComputeResponse{Scheme: name, Computable: ok}, http.StatusOK)
}

// Closure reports what a scheme can derive
func (h *SchemeHandler) Closure(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Closure(r.PathValue("name"))
	if err != nil {
		h.fail(w, "Failed to get closure", err)
		return
	}

	writeJSON(w, report, http.StatusOK)
}

// Compare reports whether one scheme can be derived from another
func (h *SchemeHandler) Compare(w http.ResponseWriter, r *http.Request) {
	cmp, err := h.svc.Compare(r.PathValue("name"), r.PathValue("other"))
	if err != nil {
		h.fail(w, "Failed to compare schemes", err)
		return
	}

	writeJSON(w, cmp, http.StatusOK)
}

// Compatible lists schemes defined over the same atoms
func (h *SchemeHandler) Compatible(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	names, err := h.svc.Compatible(r.Context(), name)
	if err != nil {
		h.fail(w, "Failed to find compatible schemes", err)
		return
	}

	writeJSON(w, CompatibleResponse{Scheme: name, Compatible: names}, http.StatusOK)
}

// Export writes a scheme document; the format query parameter defaults to yaml
func (h *SchemeHandler) Export(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "yaml"
	}
	c, err := codec.ForFormat(format)
	if err != nil {
		h.fail(w, "Failed to export scheme", err)
		return
	}
	format = c.Format()

	// Encode before writing so failures can still get an error response
	var buf bytes.Buffer
	if err := h.svc.Export(name, format, &buf); err != nil {
		h.fail(w, "Failed to export scheme", err)
		return
	}

	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+format))
	w.Write(buf.Bytes())
}

// Health reports liveness
func (h *SchemeHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// Helper methods

// fail maps service and domain errors to HTTP statuses
func (h *SchemeHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	}
	writeError(w, msg, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSchemeNotFound), errors.Is(err, domain.ErrLabelNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSchemeExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrUnknownAtoms),
		errors.Is(err, domain.ErrAmbiguousAtom),
		errors.Is(err, service.ErrInvalidScheme),
		errors.Is(err, codec.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func mutationStatus(added bool) int {
	if added {
		return http.StatusCreated
	}
	return http.StatusOK
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON", "error", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
