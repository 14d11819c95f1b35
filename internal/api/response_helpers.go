// internal/api/response_helpers.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
)

// ResponseHelper provides unified response construction for all handlers.
type ResponseHelper struct{}

// NewResponseHelper creates a response helper instance.
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success sends a successful response with data.
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(http.StatusOK, response)
}

// Created sends a 201 response for newly created resources.
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(http.StatusCreated, response)
}

// Error sends an error response with the given status and code.
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...interface{}) {
	apiError := &APIError{
		Code:    errorCode,
		Message: message,
	}
	if len(details) > 0 {
		apiError.Details = details[0]
	}

	response := APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}
	c.JSON(statusCode, response)
}

// BadRequest sends a 400 error response.
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...interface{}) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound sends a 404 error response.
func (rh *ResponseHelper) NotFound(c *gin.Context, message string, details ...interface{}) {
	rh.Error(c, http.StatusNotFound, ErrorNotFound, message, details...)
}

// Unauthorized sends a 401 error response.
func (rh *ResponseHelper) Unauthorized(c *gin.Context, message string) {
	rh.Error(c, http.StatusUnauthorized, ErrorUnauthorized, message)
}

// Forbidden sends a 403 error response.
func (rh *ResponseHelper) Forbidden(c *gin.Context, message string) {
	rh.Error(c, http.StatusForbidden, ErrorForbidden, message)
}

// Conflict sends a 409 error response.
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...interface{}) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// InternalError sends a 500 error response.
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...interface{}) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// HandleServiceError maps a service-layer error to the matching HTTP response.
func (rh *ResponseHelper) HandleServiceError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidationError(err):
		rh.Error(c, http.StatusBadRequest, ErrorBadRequest, err.Error())
	case apperrors.IsNotFoundError(err):
		rh.Error(c, http.StatusNotFound, ErrorNotFound, err.Error())
	case apperrors.IsUnauthorizedError(err):
		rh.Error(c, http.StatusUnauthorized, ErrorUnauthorized, err.Error())
	case apperrors.IsConflictError(err):
		rh.Error(c, http.StatusConflict, ErrorConflict, err.Error())
	case apperrors.IsNarratorError(err):
		rh.Error(c, http.StatusBadGateway, ErrorNarratorFailed, err.Error())
	case apperrors.IsTransportError(err):
		rh.Error(c, http.StatusBadGateway, ErrorNarratorFailed, err.Error())
	case apperrors.IsDataError(err):
		rh.Error(c, http.StatusInternalServerError, ErrorStorageFailed, err.Error())
	default:
		rh.Error(c, http.StatusInternalServerError, ErrorInternalError, err.Error())
	}
}

// getRequestID extracts the request ID injected by the request ID middleware.
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
