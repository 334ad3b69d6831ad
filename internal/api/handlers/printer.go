package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/dsrx/internal/core"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PaperSource answers paper and port queries, as core.PaperResolver does.
type PaperSource interface {
	ResolvePaperSizes(printerName string) ([]core.PaperSizeEntry, error)
	ResolvePortName(printerName string) (string, error)
}

// StatusSource reports printer status, as core.Monitor does.
type StatusSource interface {
	Status() *core.PrinterStatus
	CheckStatus() *core.PrinterStatus
}

type PapersResponse struct {
	Printer string                `json:"printer"`
	Papers  []core.PaperSizeEntry `json:"papers"`
	Count   int                   `json:"count"`
}

type PortResponse struct {
	Printer  string `json:"printer"`
	PortName string `json:"port_name"`
	Ready    bool   `json:"ready"`
}

type PrinterHandler struct {
	printerName string
	papers      PaperSource
	monitor     StatusSource
}

func NewPrinterHandler(printerName string, papers PaperSource, monitor StatusSource) *PrinterHandler {
	return &PrinterHandler{
		printerName: printerName,
		papers:      papers,
		monitor:     monitor,
	}
}

func (h *PrinterHandler) ListPapers(c *gin.Context) {
	papers, err := h.papers.ResolvePaperSizes(h.printerName)
	if err != nil {
		c.JSON(statusForError(err), ErrorResponse{
			Error:   "printer_error",
			Message: err.Error(),
		})
		return
	}
	if papers == nil {
		papers = []core.PaperSizeEntry{}
	}

	c.JSON(http.StatusOK, PapersResponse{
		Printer: h.printerName,
		Papers:  papers,
		Count:   len(papers),
	})
}

func (h *PrinterHandler) GetPort(c *gin.Context) {
	port, err := h.papers.ResolvePortName(h.printerName)
	if err != nil {
		c.JSON(statusForError(err), ErrorResponse{
			Error:   "printer_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, PortResponse{
		Printer:  h.printerName,
		PortName: port,
		Ready:    port != "",
	})
}

// GetStatus returns the monitor's last observation. ?refresh=true queries
// the printer first.
func (h *PrinterHandler) GetStatus(c *gin.Context) {
	var status *core.PrinterStatus
	if c.Query("refresh") == "true" {
		status = h.monitor.CheckStatus()
	} else if status = h.monitor.Status(); status == nil {
		status = h.monitor.CheckStatus()
	}

	c.JSON(http.StatusOK, gin.H{
		"printer": h.printerName,
		"status":  status,
	})
}

func (h *PrinterHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/printer/papers", h.ListPapers)
	r.GET("/printer/port", h.GetPort)
	r.GET("/printer/status", h.GetStatus)
}
