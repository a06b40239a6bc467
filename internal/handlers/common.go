package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"helpdesk-service/internal/models"
	"helpdesk-service/internal/repository"
	"helpdesk-service/internal/services"
)

var (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ConfigurePagination sets the page-size bounds applied to every list
// endpoint. Called once at startup from configuration.
func ConfigurePagination(defaultSize, maxSize int) {
	if defaultSize > 0 {
		defaultPageSize = defaultSize
	}
	if maxSize > 0 {
		maxPageSize = maxSize
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
	})
}

// respondServiceError maps service-layer sentinel errors onto HTTP statuses.
// Policy denials surface as a generic 403 regardless of the reason.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
	case errors.Is(err, repository.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, services.ErrSelfGrant):
		respondError(c, http.StatusBadRequest, "SELF_GRANT", "Cannot grant access to yourself")
	case errors.Is(err, services.ErrExpiryInPast):
		respondError(c, http.StatusBadRequest, "INVALID_EXPIRY", "Expiry must be in the future")
	case errors.Is(err, services.ErrHierarchyViolation):
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
	case errors.Is(err, services.ErrRequestNotPending):
		respondError(c, http.StatusConflict, "REQUEST_NOT_PENDING", "Request has already been reviewed")
	case errors.Is(err, services.ErrTokenNotFound):
		respondError(c, http.StatusNotFound, "TOKEN_NOT_FOUND", "Token is invalid, expired, or already used")
	case errors.Is(err, services.ErrInvalidPassword):
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Password verification failed")
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred")
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid "+name+" parameter")
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
