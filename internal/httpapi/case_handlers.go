package httpapi

import (
	"io"
	"net/http"
	"strings"

	"kycdesk.org/internal/audit"
	"kycdesk.org/internal/cases"
	"kycdesk.org/internal/risk"
)

type createCaseRequest struct {
	Profile cases.Profile `json:"profile"`
}

type commentsRequest struct {
	Comments string `json:"comments"`
}

type uploadResponse struct {
	Case           *cases.Case      `json:"case"`
	OCRConfidence  float64          `json:"ocr_confidence"`
	DataMatchScore *float64         `json:"data_match_score,omitempty"`
	RiskAssessment *risk.Assessment `json:"risk_assessment,omitempty"`
}

func (a *API) handleCases(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createCaseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		c, err := a.cases.Create(r.Context(), act, req.Profile)
		if err != nil {
			handleCaseError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "case.created", map[string]any{"case_id": c.ID})
		writeJSON(w, http.StatusCreated, c)
	case http.MethodGet:
		list, err := a.cases.List(r.Context(), act, r.URL.Query().Get("status"))
		if err != nil {
			handleCaseError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cases": list})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCaseByID(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/cases/"), "/")
	id := parts[0]
	if id == "" || len(parts) > 2 {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			c, err := a.cases.Get(r.Context(), act, id)
			if err != nil {
				handleCaseError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, c)
		case http.MethodDelete:
			if err := a.cases.Delete(r.Context(), act, id); err != nil {
				handleCaseError(w, r, err)
				return
			}
			_ = audit.LogEvent(r.Context(), "case.deleted", map[string]any{"case_id": id})
			writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
		return
	}

	switch parts[1] {
	case "documents":
		a.handleUpload(w, r, act, id)
	case "submit", "approve", "reject", "return":
		a.handleTransition(w, r, act, id, parts[1])
	case "audit":
		a.handleAuditTrail(w, r, act, id)
	case "validation":
		a.handleValidation(w, r, act, id)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request, act cases.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseMultipartForm(a.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "multipart form with doc_type and file is required")
		return
	}
	docType := strings.TrimSpace(r.FormValue("doc_type"))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "file is required")
		return
	}
	defer file.Close()
	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "unreadable file")
		return
	}

	c, err := a.cases.UploadDocument(r.Context(), act, id, docType, header.Filename, payload)
	if err != nil {
		handleCaseError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "case.document_processed", map[string]any{
		"case_id":  c.ID,
		"doc_type": docType,
	})
	writeJSON(w, http.StatusOK, uploadResponse{
		Case:           c,
		OCRConfidence:  c.OCR[docType].Confidence,
		DataMatchScore: c.MatchScore,
		RiskAssessment: c.Assessment,
	})
}

func (a *API) handleTransition(w http.ResponseWriter, r *http.Request, act cases.Actor, id, verb string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req commentsRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
	}

	var (
		c   *cases.Case
		err error
	)
	switch verb {
	case "submit":
		c, err = a.cases.Submit(r.Context(), act, id, req.Comments)
	case "approve":
		c, err = a.cases.Approve(r.Context(), act, id, req.Comments)
	case "reject":
		c, err = a.cases.Reject(r.Context(), act, id, req.Comments)
	default:
		c, err = a.cases.ReturnToMaker(r.Context(), act, id, req.Comments)
	}
	if err != nil {
		handleCaseError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "case."+verb, map[string]any{
		"case_id": c.ID,
		"status":  string(c.Status),
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleAuditTrail(w http.ResponseWriter, r *http.Request, act cases.Actor, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	trail, err := a.cases.AuditTrail(r.Context(), act, id)
	if err != nil {
		handleCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit": trail})
}

func (a *API) handleValidation(w http.ResponseWriter, r *http.Request, act cases.Actor, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rep, err := a.cases.Validation(r.Context(), act, id)
	if err != nil {
		handleCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
