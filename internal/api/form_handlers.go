package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cf-civicrm/internal/models"
	"cf-civicrm/internal/runner"

	"github.com/sirupsen/logrus"
)

// ProcessRequest is the body of submit and render requests. The form is
// given inline or by the ID of a registered form.
type ProcessRequest struct {
	FormID      string                 `json:"form_id,omitempty"`
	Form        json.RawMessage        `json:"form,omitempty"`
	Values      map[string]interface{} `json:"values,omitempty"`
	Files       map[string][]string    `json:"files,omitempty"`
	Session     models.Session         `json:"session"`
	TransientID string                 `json:"transient_id,omitempty"`
}

// LoadForm validates and registers a form definition
func (s *Server) LoadForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", "Failed to read body: "+err.Error())
		return
	}
	form, err := s.parser.ParseForm(data)
	if err != nil {
		s.writeFormError(w, err)
		return
	}
	s.forms.Put(form)
	s.log.WithFields(logrus.Fields{"form": form.ID, "processors": len(form.Processors)}).Info("form loaded")
	s.writeSuccess(w, formInfo(form), "Form loaded successfully")
}

// ListForms lists registered forms
func (s *Server) ListForms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	forms := s.forms.List()
	infos := make([]FormInfo, 0, len(forms))
	for _, f := range forms {
		infos = append(infos, formInfo(f))
	}
	s.writeSuccess(w, map[string]interface{}{"forms": infos}, "")
}

// GetForm returns a registered form by ID
func (s *Server) GetForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "Form ID is required")
		return
	}
	form, err := s.forms.Get(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "form_not_found", err.Error())
		return
	}
	s.writeSuccess(w, form, "")
}

// DeleteForm removes a registered form
func (s *Server) DeleteForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only DELETE method is allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "Form ID is required")
		return
	}
	if err := s.forms.Delete(id); err != nil {
		s.writeError(w, http.StatusNotFound, "form_not_found", err.Error())
		return
	}
	s.writeSuccess(w, nil, "Form deleted successfully")
}

// SubmitForm runs the form's processors for a submission. A processor
// failure is answered with 422 and the note to show the submitter.
func (s *Server) SubmitForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	sub, ok := s.decodeSubmission(w, r)
	if !ok {
		return
	}

	outcome, err := s.runner.Submit(r.Context(), sub)
	if err != nil {
		s.writeRunnerError(w, err)
		return
	}
	if outcome.Note != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, NoteResponse{
			Note:        outcome.Note.Note,
			Type:        outcome.Note.Type,
			TransientID: outcome.TransientID,
			Contacts:    outcome.Contacts,
		})
		return
	}
	s.writeSuccess(w, outcome, "Submission processed")
}

// RenderForm returns the form with defaults pre-filled from the CRM
func (s *Server) RenderForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	sub, ok := s.decodeSubmission(w, r)
	if !ok {
		return
	}

	outcome, err := s.runner.Render(r.Context(), sub)
	if err != nil {
		s.writeRunnerError(w, err)
		return
	}
	s.writeSuccess(w, outcome, "")
}

func (s *Server) decodeSubmission(w http.ResponseWriter, r *http.Request) (*models.Submission, bool) {
	var req ProcessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse JSON: "+err.Error())
		return nil, false
	}

	var form *models.Form
	var err error
	switch {
	case len(bytes.TrimSpace(req.Form)) > 0 && !bytes.Equal(bytes.TrimSpace(req.Form), []byte("null")):
		form, err = s.parser.ParseForm(req.Form)
		if err != nil {
			s.writeFormError(w, err)
			return nil, false
		}
	case req.FormID != "":
		form, err = s.forms.Get(req.FormID)
		if err != nil {
			s.writeError(w, http.StatusNotFound, "form_not_found", err.Error())
			return nil, false
		}
	default:
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "Either form or form_id is required")
		return nil, false
	}

	return &models.Submission{
		Form:        form,
		Values:      req.Values,
		Files:       req.Files,
		Session:     req.Session,
		TransientID: req.TransientID,
	}, true
}

func (s *Server) writeRunnerError(w http.ResponseWriter, err error) {
	if errors.Is(err, runner.ErrNoForm) {
		s.writeError(w, http.StatusBadRequest, "missing_form", err.Error())
		return
	}
	s.log.WithError(err).Error("form processing failed")
	s.writeError(w, http.StatusInternalServerError, "processing_failed", err.Error())
}
