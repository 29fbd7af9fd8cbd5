package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/heistctf/scoring"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

// SubmissionController is the ingress for judged flag attempts. Flag
// checking happens upstream; only admins (the judge) may post results.
type SubmissionController struct {
	recorder *scoring.Recorder
	reader   store.Reader
}

// NewSubmissionController creates a new SubmissionController instance.
func NewSubmissionController(recorder *scoring.Recorder, reader store.Reader) *SubmissionController {
	return &SubmissionController{recorder: recorder, reader: reader}
}

// Record applies one submission event.
func (s *SubmissionController) Record(ctx *gin.Context) {
	if _, ok := requireAdmin(ctx, s.reader); !ok {
		return
	}
	var ev scoring.SubmissionEvent
	if err := ctx.ShouldBindJSON(&ev); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	if ev.SolveSeconds < 0 {
		utils.Error(ctx, http.StatusBadRequest, 40022, "solve_seconds cannot be negative")
		return
	}
	out, err := s.recorder.RecordSubmission(requestContext(ctx), ev)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Respond(ctx, http.StatusCreated, 0, "success", out)
}
