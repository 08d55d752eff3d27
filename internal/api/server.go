package api

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// SetupRoutes sets up the HTTP routes for the API server
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Form registry
	mux.HandleFunc("/api/forms/load", s.corsMiddleware(s.LoadForm))
	mux.HandleFunc("/api/forms/list", s.corsMiddleware(s.ListForms))
	mux.HandleFunc("/api/forms/get", s.corsMiddleware(s.GetForm))
	mux.HandleFunc("/api/forms/delete", s.corsMiddleware(s.DeleteForm))
	mux.HandleFunc("/api/forms/validate", s.corsMiddleware(s.ValidateForm))

	// Processing
	mux.HandleFunc("/api/forms/submit", s.corsMiddleware(s.SubmitForm))
	mux.HandleFunc("/api/forms/render", s.corsMiddleware(s.RenderForm))

	// Health check endpoint
	mux.HandleFunc("/api/health", s.corsMiddleware(s.HealthCheck))

	// API documentation endpoint
	mux.HandleFunc("/api/docs", s.corsMiddleware(s.APIDocs))

	return mux
}

// corsMiddleware adds CORS headers to allow cross-origin requests
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// HealthCheck returns the health status of the API
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	status := map[string]interface{}{
		"status":  "healthy",
		"service": "cfcrm",
		"version": Version,
		"forms":   s.forms.Count(),
		"engine":  "gopher-lua",
	}

	s.writeSuccess(w, status, "Service is healthy")
}

// APIDocs returns API documentation
func (s *Server) APIDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	docs := map[string]interface{}{
		"title":       "cfcrm API",
		"version":     Version,
		"description": "Runs CRM contact and activity processors for form submissions and pre-fills forms from CRM records",
		"endpoints": map[string]interface{}{
			"Forms": map[string]interface{}{
				"POST /api/forms/load":     "Validate and register a form definition",
				"GET /api/forms/list":      "List registered forms",
				"GET /api/forms/get":       "Get a registered form by ID",
				"DELETE /api/forms/delete": "Remove a registered form by ID",
				"POST /api/forms/validate": "Check a form definition and return schema violations",
			},
			"Processing": map[string]interface{}{
				"POST /api/forms/submit": "Run the form's processors for a submission",
				"POST /api/forms/render": "Return the form with defaults pre-filled from the CRM",
			},
			"Utility": map[string]interface{}{
				"GET /api/health": "Health check",
				"GET /api/docs":   "API documentation",
			},
		},
		"examples": map[string]interface{}{
			"submit": map[string]interface{}{
				"method": "POST",
				"url":    "/api/forms/submit",
				"body": map[string]interface{}{
					"form_id": "CF5a1b2c",
					"values": map[string]interface{}{
						"fld_first": "Ada",
						"fld_last":  "Lovelace",
						"fld_email": "ada@example.org",
					},
					"session": map[string]interface{}{"contact_id": 0},
				},
			},
			"render": map[string]interface{}{
				"method": "POST",
				"url":    "/api/forms/render",
				"body": map[string]interface{}{
					"form_id": "CF5a1b2c",
					"session": map[string]interface{}{"contact_id": 42},
				},
			},
		},
	}

	s.writeSuccess(w, docs, "")
}

// StartServer serves the API on addr until ctx is cancelled, then shuts the
// listener down gracefully.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", addr).Info("starting cfcrm API server")
	s.log.Infof("API documentation available at: http://%s/api/docs", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
