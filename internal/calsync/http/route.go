package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, adminMiddleware gin.HandlerFunc) {
	group := g.Group("/sync")
	group.Use(authMiddleware)
	{
		group.GET("/status", h.Status)
		group.POST("/run", adminMiddleware, h.Run)
	}
}
