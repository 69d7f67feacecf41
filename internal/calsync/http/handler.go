package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/W-VNT/conciergeos-sub004/internal/calsync"
)

type Handler struct {
	service *calsync.Service
}

func NewHandler(service *calsync.Service) *Handler {
	return &Handler{service: service}
}

// Run triggers a full sync cycle now, for the dashboard's refresh button.
// It blocks until the cycle completes so the caller sees fresh state.
func (h *Handler) Run(c *gin.Context) {
	h.service.RunAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"statuses": h.service.Status()})
}

// Status reports the last outcome per source.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"statuses": h.service.Status()})
}
