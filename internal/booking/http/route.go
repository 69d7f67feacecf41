package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, staffMiddleware gin.HandlerFunc) {
	resources := g.Group("/resources")
	resources.Use(authMiddleware)
	{
		resources.GET("/:id/timeline", h.Timeline)
	}

	bookings := g.Group("/bookings")
	bookings.Use(authMiddleware)
	{
		bookings.GET("/:id", h.Get)

		// Mutations require a staff or admin role.
		bookings.POST("", staffMiddleware, h.Create)
		bookings.POST("/:id/move", staffMiddleware, h.Move)
		bookings.POST("/:id/cancel", staffMiddleware, h.Cancel)
		bookings.POST("/:id/resolve", staffMiddleware, h.Resolve)
	}
}
