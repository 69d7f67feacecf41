package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/W-VNT/conciergeos-sub004/internal/booking"
	"github.com/W-VNT/conciergeos-sub004/internal/grid"
	"github.com/W-VNT/conciergeos-sub004/internal/pkg/response"
)

type Handler struct {
	service booking.Service
	grid    grid.Service
	loc     *time.Location
}

func NewHandler(service booking.Service, gridService grid.Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		service: service,
		grid:    gridService,
		loc:     loc,
	}
}

func (h *Handler) parseDate(v string) (time.Time, bool) {
	t, err := time.ParseInLocation(dateLayout, v, h.loc)
	return t, err == nil
}

// Timeline returns a resource's bookings intersecting a date window.
func (h *Handler) Timeline(c *gin.Context) {
	resourceID := c.Param("id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	filter := booking.Filter{
		ResourceID: resourceID,
		Status:     c.Query("status"),
		Page:       page,
		PageSize:   pageSize,
	}

	if v := c.Query("from"); v != "" {
		t, ok := h.parseDate(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, ok := h.parseDate(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		filter.To = &t
	}

	bookings, total, err := h.service.Timeline(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, page, pageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	b, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	start, ok := h.parseDate(body.StartDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	end, ok := h.parseDate(body.EndDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
		return
	}

	b, err := h.service.CreateLocal(c.Request.Context(), booking.CreateLocalRequest{
		ResourceID: body.ResourceID,
		StartDate:  start,
		EndDate:    end,
		Summary:    body.Summary,
	})
	if err != nil {
		if overlap, ok := booking.AsOverlap(err); ok {
			conflicting := NewBookingResponse(overlap.Conflicting)
			c.JSON(http.StatusConflict, gin.H{
				"error":       booking.ErrOverlap.Error(),
				"conflicting": conflicting,
			})
			return
		}
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewBookingResponse(b))
}

// Move translates a drag gesture into a validated, version-checked move.
func (h *Handler) Move(c *gin.Context) {
	var body MoveBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	start, ok := h.parseDate(body.StartDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	end, ok := h.parseDate(body.EndDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
		return
	}

	res, err := h.grid.ProposeMove(c.Request.Context(), grid.ProposeMoveRequest{
		BookingID:       c.Param("id"),
		ResourceID:      body.ResourceID,
		StartDate:       start,
		EndDate:         end,
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if !res.Accepted {
		switch res.Reason {
		case grid.ReasonInvalidRange:
			status = http.StatusBadRequest
		default:
			status = http.StatusConflict
		}
	}
	c.JSON(status, NewMoveResponse(res))
}

func (h *Handler) Cancel(c *gin.Context) {
	var body CancelBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), body.ExpectedVersion); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Resolve is the explicit staff action on a conflicted booking.
func (h *Handler) Resolve(c *gin.Context) {
	var body ResolveBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.ResolveConflict(c.Request.Context(), c.Param("id"), body.ExpectedVersion, body.Action == "accept")
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}
