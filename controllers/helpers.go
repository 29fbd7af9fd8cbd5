package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/heistctf/apperr"
	"github.com/cppla/heistctf/middleware"
	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

// respondError maps an error kind to an HTTP status and a numeric code.
func respondError(ctx *gin.Context, err error) {
	status, code := http.StatusInternalServerError, 50000
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status, code = http.StatusNotFound, 40401
	case errors.Is(err, apperr.ErrPermissionDenied):
		status, code = http.StatusForbidden, 40301
	case errors.Is(err, apperr.ErrInsufficientCurrency):
		status, code = http.StatusPaymentRequired, 40201
	case errors.Is(err, apperr.ErrInvalidState):
		status, code = http.StatusConflict, 40901
	case errors.Is(err, apperr.ErrConcurrencyConflict):
		status, code = http.StatusConflict, 40902
	case errors.Is(err, apperr.ErrTransientStore):
		status, code = http.StatusServiceUnavailable, 50301
	}
	if status >= http.StatusInternalServerError {
		_ = ctx.Error(err)
	}
	utils.Error(ctx, status, code, apperr.Message(err))
}

func getUserID(ctx *gin.Context) (uint, bool) {
	id, ok := middleware.CurrentUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return 0, false
	}
	return id, true
}

// loadActor resolves the caller's role and team from the store, never from
// the token, so a team change or demotion takes effect immediately.
func loadActor(ctx *gin.Context, reader store.Reader) (models.Actor, bool) {
	id, ok := getUserID(ctx)
	if !ok {
		return models.Actor{}, false
	}
	u, err := reader.GetUser(requestContext(ctx), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			utils.Error(ctx, http.StatusUnauthorized, 40111, "unknown user")
			return models.Actor{}, false
		}
		respondError(ctx, err)
		return models.Actor{}, false
	}
	if u.IsBlocked {
		utils.Error(ctx, http.StatusForbidden, 40302, "account blocked")
		return models.Actor{}, false
	}
	return models.ActorFor(u), true
}

func requireAdmin(ctx *gin.Context, reader store.Reader) (models.Actor, bool) {
	actor, ok := loadActor(ctx, reader)
	if !ok {
		return actor, false
	}
	if !actor.IsAdmin() {
		utils.Error(ctx, http.StatusForbidden, 40303, "admin only")
		return actor, false
	}
	return actor, true
}

func requestContext(ctx *gin.Context) context.Context {
	return ctx.Request.Context()
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// parseOptionalUint reads a positive integer query parameter. Absent means nil.
func parseOptionalUint(ctx *gin.Context, name string) (*uint, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid "+name)
		return nil, false
	}
	id := uint(v)
	return &id, true
}

// parseLimit returns 0 for an absent or unparsable limit so the callee's
// default applies.
func parseLimit(ctx *gin.Context) int {
	n, err := strconv.Atoi(ctx.Query("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
