package app

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/W-VNT/conciergeos-sub004/internal/api"
	"github.com/W-VNT/conciergeos-sub004/internal/auth"
	"github.com/W-VNT/conciergeos-sub004/internal/booking"
	"github.com/W-VNT/conciergeos-sub004/internal/calsync"
	"github.com/W-VNT/conciergeos-sub004/internal/config"
	"github.com/W-VNT/conciergeos-sub004/internal/feed"
	"github.com/W-VNT/conciergeos-sub004/internal/grid"
)

// Container holds the initialized components that are needed externally.
type Container struct {
	Router     *gin.Engine
	Scheduler  *calsync.Scheduler
	SyncSvc    *calsync.Service
	JWTManager *auth.JWTManager
}

// NewContainer initializes all modules and returns the container.
// DBPool may be nil when the config selects the in-memory store.
func NewContainer(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*Container, error) {
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTokenTTL)

	// Scheduling store
	var repo booking.Repository
	if cfg.StoreDriver == "memory" {
		repo = booking.NewMemoryRepository()
	} else {
		repo = booking.NewPgxRepository(pool)
	}
	bookingService := booking.NewService(repo)

	// Interactive scheduling surface
	gridService := grid.NewService(bookingService)

	// Feed sync pipeline
	fetcher := feed.NewFetcher(cfg.SyncFetchTimeout)
	normalizer := feed.NewNormalizer(cfg.CalendarTimezone)
	policy := calsync.Policy{AutoResolveConflicts: cfg.AutoResolveConflicts}
	syncService := calsync.NewService(fetcher, normalizer, bookingService, cfg.Sources, policy, logger)

	scheduler, err := calsync.NewScheduler(syncService, cfg.SyncSchedule, logger)
	if err != nil {
		return nil, err
	}

	router := api.NewRouter(api.Config{
		IsProduction:   cfg.IsProduction,
		ProdOrigins:    cfg.ProdOrigins,
		BookingService: bookingService,
		GridService:    gridService,
		SyncService:    syncService,
		JWTManager:     jwtManager,
		Timezone:       cfg.CalendarTimezone,
	})

	return &Container{
		Router:     router,
		Scheduler:  scheduler,
		SyncSvc:    syncService,
		JWTManager: jwtManager,
	}, nil
}
