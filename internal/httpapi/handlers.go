package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"patientcore/pkg/domain"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func principalFrom(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(string); ok {
		return p
	}
	return "anonymous"
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string, details []string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}

// writeDomainError maps the service error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		structural domain.StructuralError
		notFound   domain.NotFoundError
		business   domain.BusinessRuleError
		conflict   domain.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &structural):
		writeError(w, http.StatusBadRequest, "missing required fields", structural.Fields)
	case errors.Is(err, domain.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &business):
		var details []string
		for _, v := range business.Violations {
			details = append(details, v.Message)
		}
		writeError(w, http.StatusBadRequest, "merge rejected", details)
	case errors.As(err, &notFound), errors.Is(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return s.validate.Struct(dst)
}

func (s *Server) handleMergeDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.svc.GetMergeDetails(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req domain.MergeRequest
	if err := s.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	result, err := s.svc.ValidateMerge(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req domain.MergeRequest
	if err := s.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	result, err := s.svc.ExecuteMerge(r.Context(), req, principalFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("identifier")
	if value == "" {
		writeError(w, http.StatusBadRequest, "identifier query parameter is required", nil)
		return
	}
	hits, err := s.svc.SearchByIdentifier(r.Context(), value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleMergeHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.MergeHistory(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.MergeAuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	fileName := r.URL.Query().Get("filename")
	if fileName == "" {
		writeError(w, http.StatusBadRequest, "filename query parameter is required", nil)
		return
	}
	contentType := r.Header.Get("Content-Type")
	doc, err := s.svc.AttachDocument(r.Context(), chi.URLParam(r, "patientID"), fileName, contentType, r.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	doc, rc, err := s.svc.OpenDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()
	if doc.ContentType != "" {
		w.Header().Set("Content-Type", doc.ContentType)
	}
	if doc.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// writeRequestError renders body decode and struct validation failures.
func writeRequestError(w http.ResponseWriter, err error) {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		var details []string
		for _, f := range invalid {
			details = append(details, f.Field()+" failed "+f.Tag()+" validation")
		}
		writeError(w, http.StatusBadRequest, "invalid request", details)
		return
	}
	writeError(w, http.StatusBadRequest, "malformed request body", nil)
}
