package api

import (
	"encoding/json"
	"net/http"

	"cf-civicrm/internal/models"
	"cf-civicrm/internal/runner"

	"github.com/sirupsen/logrus"
)

// Version is reported by the health and docs endpoints
var Version = "dev"

// maxBodyBytes bounds request bodies
const maxBodyBytes = 4 << 20

// Server represents the API server
type Server struct {
	runner *runner.Runner
	parser *models.FormParser
	forms  *FormRegistry
	log    logrus.FieldLogger
}

// NewServer creates a new API server
func NewServer(r *runner.Runner, parser *models.FormParser, log logrus.FieldLogger) *Server {
	return &Server{
		runner: r,
		parser: parser,
		forms:  NewFormRegistry(),
		log:    log,
	}
}

// Response structures

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// NoteResponse is returned with 422 when a processor stops a submission
type NoteResponse struct {
	Note        string         `json:"note"`
	Type        string         `json:"type"`
	TransientID string         `json:"transient_id"`
	Contacts    map[string]int `json:"contacts,omitempty"`
}

type FormInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Fields     int      `json:"fields"`
	Processors []string `json:"processors"`
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err string, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}, message string) {
	s.writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

func formInfo(f *models.Form) FormInfo {
	types := make([]string, 0, len(f.Processors))
	for _, p := range f.Processors {
		types = append(types, p.Type)
	}
	return FormInfo{ID: f.ID, Name: f.Name, Fields: len(f.Fields), Processors: types}
}
