package response

import (
	"net/http"

	"codepad/pkg/errors"
	"codepad/pkg/utils/contextkey"
	"codepad/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the JSON envelope returned by every API endpoint.
type Response struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
	Details interface{}      `json:"details,omitempty"`
	TraceID string           `json:"trace_id,omitempty"`
}

func write(c *gin.Context, status int, body Response) {
	body.TraceID = c.GetString(contextkey.TraceID.String())
	c.JSON(status, body)
}

// Success sends 200 with data.
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, Response{Code: errors.Success, Message: "Success", Data: data})
}

// Created sends 201 with data.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Response{Code: errors.Success, Message: "Created", Data: data})
}

// Accepted sends 202 for work that finishes in the background.
func Accepted(c *gin.Context, data interface{}) {
	write(c, http.StatusAccepted, Response{Code: errors.Success, Message: "Accepted", Data: data})
}

// Error maps err to its status and envelope. Server-side failures are logged
// with their stack; rejections are logged at warn.
func Error(c *gin.Context, err error) {
	e := errors.GetError(err)
	status := e.Code.HTTPStatus()

	ctx := c.Request.Context()
	fields := []zap.Field{zap.Int("code", int(e.Code)), zap.String("message", e.Error())}
	if status >= http.StatusInternalServerError {
		logger.Error(ctx, "request failed", append(fields, zap.NamedError("cause", e.Err), zap.String("stack", e.Stack))...)
	} else {
		logger.Warn(ctx, "request rejected", fields...)
	}

	body := Response{Code: e.Code, Message: e.Error()}
	if len(e.Details) > 0 {
		body.Details = e.Details
	}
	write(c, status, body)
}

// BadRequest sends 400 with message.
func BadRequest(c *gin.Context, message string) {
	Error(c, errors.BadRequest(message))
}

// AbortWithError sends the error envelope and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
