package api

import (
	"errors"
	"io"
	"net/http"

	"cf-civicrm/internal/models"
)

// ValidationResponse lists the problems found in a form definition
type ValidationResponse struct {
	Valid      bool               `json:"valid"`
	Violations []models.Violation `json:"violations"`
	// UnknownProcessors lists processor types no registered processor handles
	UnknownProcessors []string `json:"unknownProcessors,omitempty"`
}

// InvalidFormResponse is returned with 400 when a form fails the schema
type InvalidFormResponse struct {
	Error      string             `json:"error"`
	Message    string             `json:"message"`
	Violations []models.Violation `json:"violations"`
}

// ValidateForm checks a form definition without registering it; POST /api/forms/validate.
func (s *Server) ValidateForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", "Failed to read body: "+err.Error())
		return
	}

	violations, err := s.parser.Validate(data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	resp := ValidationResponse{Valid: len(violations) == 0, Violations: violations}
	if resp.Violations == nil {
		resp.Violations = []models.Violation{}
	}
	if resp.Valid {
		form, err := s.parser.ParseForm(data)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
			return
		}
		resp.UnknownProcessors = s.unknownProcessors(form)
	}
	s.writeSuccess(w, resp, "")
}

func (s *Server) unknownProcessors(form *models.Form) []string {
	var unknown []string
	for _, p := range form.Processors {
		if !s.runner.Registered(p.Type) {
			unknown = append(unknown, p.Type)
		}
	}
	return unknown
}

// writeFormError reports a form that failed to parse
func (s *Server) writeFormError(w http.ResponseWriter, err error) {
	var schemaErr *models.SchemaError
	if errors.As(err, &schemaErr) {
		s.writeJSON(w, http.StatusBadRequest, InvalidFormResponse{
			Error:      "invalid_form",
			Message:    "Form definition does not match the schema",
			Violations: schemaErr.Violations,
		})
		return
	}
	s.writeError(w, http.StatusBadRequest, "invalid_form", "Failed to parse form: "+err.Error())
}
