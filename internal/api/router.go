package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/W-VNT/conciergeos-sub004/internal/auth"
	"github.com/W-VNT/conciergeos-sub004/internal/booking"
	bookingHttp "github.com/W-VNT/conciergeos-sub004/internal/booking/http"
	"github.com/W-VNT/conciergeos-sub004/internal/calsync"
	syncHttp "github.com/W-VNT/conciergeos-sub004/internal/calsync/http"
	"github.com/W-VNT/conciergeos-sub004/internal/grid"
)

// Config carries everything the router needs to assemble middleware and
// register module routes.
type Config struct {
	IsProduction   bool
	ProdOrigins    string
	BookingService booking.Service
	GridService    grid.Service
	SyncService    *calsync.Service
	JWTManager     *auth.JWTManager
	Timezone       *time.Location
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.IsProduction && cfg.ProdOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(cfg.ProdOrigins, ",")
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:8081"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	authMiddleware := auth.AuthRequired(cfg.JWTManager)
	staffMiddleware := auth.RequireRole(auth.RoleStaff, auth.RoleAdmin)
	adminMiddleware := auth.RequireRole(auth.RoleAdmin)

	bookingHandler := bookingHttp.NewHandler(cfg.BookingService, cfg.GridService, cfg.Timezone)
	syncHandler := syncHttp.NewHandler(cfg.SyncService)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		bookingHttp.RegisterRoutes(v1, bookingHandler, authMiddleware, staffMiddleware)
		syncHttp.RegisterRoutes(v1, syncHandler, authMiddleware, adminMiddleware)
	}

	return r
}
