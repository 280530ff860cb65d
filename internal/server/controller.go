package server

import (
	"context"
	"net/http"

	"codepad/internal/playground/runtime"
	"codepad/internal/playground/view"
	"codepad/pkg/utils/contextkey"
	"codepad/pkg/utils/logger"
	"codepad/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionController handles the session HTTP endpoints.
type SessionController struct {
	sessions *SessionManager
	hub      *Hub
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessions *SessionManager, hub *Hub) *SessionController {
	return &SessionController{sessions: sessions, hub: hub}
}

// CodeRequest carries editor text.
type CodeRequest struct {
	Code string `json:"code"`
}

// CreateResponse is returned when a session is opened.
type CreateResponse struct {
	SessionID string `json:"session_id"`
}

// DraftResponse returns the stored editor text.
type DraftResponse struct {
	Code string `json:"code"`
}

// Create mounts a new view.
func (h *SessionController) Create(c *gin.Context) {
	id, _, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, CreateResponse{SessionID: id})
}

// Get returns the view state.
func (h *SessionController) Get(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	response.Success(c, v.State())
}

// Delete unmounts the view.
func (h *SessionController) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Run executes code in the session's runtime.
func (h *SessionController) Run(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	result, err := v.Run(c.Request.Context(), req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GetDraft returns the editor text.
func (h *SessionController) GetDraft(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	response.Success(c, DraftResponse{Code: v.Draft()})
}

// PutDraft replaces the editor text and persists it.
func (h *SessionController) PutDraft(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := v.Edit(c.Request.Context(), req.Code); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, DraftResponse{Code: v.Draft()})
}

// Reload retries a failed runtime load.
func (h *SessionController) Reload(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	if err := v.Reload(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, v.State())
}

// Stream upgrades to a websocket carrying the session's events.
func (h *SessionController) Stream(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	st := v.State()
	initial := &Message{Type: MessageStatus, Data: view.StatusData{Phase: st.Phase, LoadError: st.LoadError, Status: runtime.Status(st.Status)}}
	if err := h.hub.Serve(c.Writer, c.Request, c.Param("id"), initial); err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
	}
}

// view resolves the session and tags the request context with its id.
func (h *SessionController) view(c *gin.Context) (*view.View, bool) {
	id := c.Param("id")
	v, err := h.sessions.Get(id)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	c.Set(contextkey.SessionID.String(), id)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.SessionID, id))
	return v, true
}
