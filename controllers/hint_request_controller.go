package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/heistctf/hints"
	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

// HintRequestController exposes the hint purchase workflow.
type HintRequestController struct {
	svc    *hints.Service
	sweep  hints.Runner
	reader store.Reader
}

// NewHintRequestController creates a new HintRequestController instance.
func NewHintRequestController(svc *hints.Service, sweep hints.Runner, reader store.Reader) *HintRequestController {
	return &HintRequestController{svc: svc, sweep: sweep, reader: reader}
}

// Create files a pending request for the caller's team.
func (h *HintRequestController) Create(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	var in hints.CreateInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	in.RequesterID = userID

	req, err := h.svc.Create(requestContext(ctx), in)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Respond(ctx, http.StatusCreated, 0, "success", req)
}

// List returns the caller's team requests, or any team's for admins.
func (h *HintRequestController) List(ctx *gin.Context) {
	actor, ok := loadActor(ctx, h.reader)
	if !ok {
		return
	}
	filter := store.HintRequestFilter{
		Status: models.HintRequestStatus(ctx.Query("status")),
		Limit:  parseLimit(ctx),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid status")
		return
	}
	if filter.ChallengeID, ok = parseOptionalUint(ctx, "challenge_id"); !ok {
		return
	}
	if filter.TeamID, ok = parseOptionalUint(ctx, "team_id"); !ok {
		return
	}

	list, err := h.svc.List(requestContext(ctx), actor, filter)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"items": list, "limit": filter.NormalizedLimit()})
}

// Get returns one request; approved requests include the hint content.
func (h *HintRequestController) Get(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	actor, ok := loadActor(ctx, h.reader)
	if !ok {
		return
	}
	view, err := h.svc.Get(requestContext(ctx), id, actor)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, view)
}

// Approve resolves a request as approved and charges the team.
func (h *HintRequestController) Approve(ctx *gin.Context) {
	h.resolve(ctx, h.svc.Approve)
}

// Reject resolves a request as rejected.
func (h *HintRequestController) Reject(ctx *gin.Context) {
	h.resolve(ctx, h.svc.Reject)
}

func (h *HintRequestController) resolve(ctx *gin.Context, fn func(c context.Context, id uint, actor models.Actor) (*models.HintRequest, error)) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	actor, ok := loadActor(ctx, h.reader)
	if !ok {
		return
	}
	req, err := fn(requestContext(ctx), id, actor)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, req)
}

// Sweep runs one auto-approval sweep on demand.
func (h *HintRequestController) Sweep(ctx *gin.Context) {
	if _, ok := requireAdmin(ctx, h.reader); !ok {
		return
	}
	report, err := h.sweep.RunSweepOnce(requestContext(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, report)
}
