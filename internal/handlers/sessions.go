package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/noirtty/noirtty/internal/session"
)

// SessionsHandler handles session management API endpoints
type SessionsHandler struct {
	registry *session.Registry
}

// HealthResponse is returned by the health check
// @Description Server liveness and session count
type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Sessions int    `json:"sessions" example:"2"`
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(registry *session.Registry) *SessionsHandler {
	return &SessionsHandler{registry: registry}
}

// RegisterRoutes registers the session routes under v1
func (h *SessionsHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Get("/sessions", h.ListSessions)
	v1.Get("/sessions/:id", h.GetSession)
	v1.Delete("/sessions/:id", h.DeleteSession)
}

// ListSessions returns all live sessions
// @Summary List sessions
// @Description Returns every live session, oldest first
// @Tags sessions
// @Produce json
// @Success 200 {array} session.Info
// @Router /v1/sessions [get]
func (h *SessionsHandler) ListSessions(c *fiber.Ctx) error {
	return c.JSON(h.registry.List())
}

// GetSession returns one session
// @Summary Get session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Info
// @Failure 404 {object} fiber.Map
// @Router /v1/sessions/{id} [get]
func (h *SessionsHandler) GetSession(c *fiber.Ctx) error {
	s, ok := h.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.JSON(s.Info())
}

// DeleteSession terminates a session. Deleting an unknown session succeeds.
// @Summary Delete session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /v1/sessions/{id} [delete]
func (h *SessionsHandler) DeleteSession(c *fiber.Ctx) error {
	h.registry.Remove(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

// Health reports liveness
// @Summary Health check
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *SessionsHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "ok", Sessions: h.registry.Len()})
}
