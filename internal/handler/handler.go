// Package handler exposes the engine over HTTP. Handlers do transport work
// only: decode, delegate to a service, encode. The requester's identity
// arrives in the X-User-ID header, set by the gateway after authentication.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/embermatch/engine/internal/apperr"
)

const headerUserID = "X-User-ID"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// fail writes the taxonomy-mapped error response. Infra faults are logged
// and surfaced as a bare internal error; the message never leaks.
func fail(c *gin.Context, log *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Code: apperr.Code(err), Message: err.Error()}
	if !apperr.Recoverable(err) {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		body.Message = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: body})
}

// requesterID reads the authenticated user id from the gateway header.
func requesterID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.GetHeader(headerUserID), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Authorization("missing or invalid " + headerUserID + " header")
	}
	return id, nil
}

// pathID reads a uint64 path parameter.
func pathID(c *gin.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

func pageTokenOf(c *gin.Context) *string {
	if token := c.Query("page_token"); token != "" {
		return &token
	}
	return nil
}

func jsonOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
