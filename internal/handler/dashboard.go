// Package handler contains the HTTP handlers. Handlers parse the request,
// call a service, and write JSON; they hold no business logic.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/contribhub/internal/middleware"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping() error
}

// DashboardHandler serves the dashboard entry point and the gated sections.
// Gating happens in middleware; by the time a section handler runs the
// caller is authorized.
type DashboardHandler struct {
	logger *slog.Logger
}

func NewDashboardHandler(logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{logger: logger}
}

// HandleEntry sends the caller to the dashboard base for their role.
//
// HTTP: GET /dashboard
//
// A cookie that no longer rehydrates has already been cleared by
// middleware.Session, so the caller goes back to "/".
func (h *DashboardHandler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, sess.DashboardBase(), http.StatusFound)
}

// SectionResponse describes a dashboard section the caller may use.
type SectionResponse struct {
	Section string `json:"section"`
	Path    string `json:"path"`
	UID     string `json:"uid"`
	Role    string `json:"role"`
}

// HandleSection returns a handler describing the named section.
//
// HTTP: GET /dashboard/{section}/*, GET /admin/*
func (h *DashboardHandler) HandleSection(section string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := middleware.SessionFromContext(r.Context())
		if !ok {
			// Only reachable when mounted without RequireRole.
			h.logger.Error("section served without a session", slog.String("section", section))
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthenticated",
				Message: "sign in to continue",
			})
			return
		}

		writeJSON(w, http.StatusOK, SectionResponse{
			Section: section,
			Path:    r.URL.Path,
			UID:     sess.Profile.UID,
			Role:    string(sess.Role),
		})
	}
}

// HealthHandler answers liveness checks.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// HandleHealth reports 200 when the profile store answers, 503 otherwise.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
