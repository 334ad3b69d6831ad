package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/dsrx/internal/core"
)

// PrintController is the part of core.Controller the print routes use.
type PrintController interface {
	Print(ctx context.Context, req core.PrintJobRequest) error
	State() core.JobState
}

type PrintHandler struct {
	ctrl PrintController
}

func NewPrintHandler(ctrl PrintController) *PrintHandler {
	return &PrintHandler{ctrl: ctrl}
}

// statusForError maps an error kind onto the HTTP status of the response.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDriverProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

// Print runs one job to completion and answers with its result.
func (h *PrintHandler) Print(c *gin.Context) {
	var req core.PrintJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	err := h.ctrl.Print(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusForError(err), core.ResultOf(err))
		return
	}

	c.JSON(http.StatusOK, core.ResultOf(nil))
}

func (h *PrintHandler) GetState(c *gin.Context) {
	st := h.ctrl.State()
	c.JSON(http.StatusOK, gin.H{
		"busy":  st.Busy(),
		"state": st,
	})
}

func (h *PrintHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/print", h.Print)
	r.GET("/print/state", h.GetState)
}
