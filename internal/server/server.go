// Package server assembles the HTTP API: middleware chain, error mapping,
// health probes and the domain routes under /api/v1.
package server

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/oncoscan/oncoscan/internal/config"
	"github.com/oncoscan/oncoscan/internal/domain/identity"
	"github.com/oncoscan/oncoscan/internal/domain/imaging"
	"github.com/oncoscan/oncoscan/internal/domain/reporting"
	"github.com/oncoscan/oncoscan/internal/platform/apperr"
	"github.com/oncoscan/oncoscan/internal/platform/blobstore"
	"github.com/oncoscan/oncoscan/internal/platform/db"
	"github.com/oncoscan/oncoscan/internal/platform/events"
	"github.com/oncoscan/oncoscan/internal/platform/middleware"
	"github.com/oncoscan/oncoscan/internal/platform/prediction"
)

// Version is reported by GET /health.
var Version = "0.1.0"

// Stores holds one repository per entity.
type Stores struct {
	Doctors  identity.DoctorRepository
	Patients identity.PatientRepository
	Images   imaging.ImageRepository
	Reports  reporting.ReportRepository
}

// MemoryStores returns empty in-memory repositories.
func MemoryStores() Stores {
	return Stores{
		Doctors:  identity.NewDoctorRepoMem(),
		Patients: identity.NewPatientRepoMem(),
		Images:   imaging.NewImageRepoMem(),
		Reports:  reporting.NewReportRepoMem(),
	}
}

// PostgresStores returns repositories backed by pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Doctors:  identity.NewDoctorRepo(pool),
		Patients: identity.NewPatientRepo(pool),
		Images:   imaging.NewImageRepo(pool),
		Reports:  reporting.NewReportRepo(pool),
	}
}

// Deps are the collaborators New wires together. Cache, Events and DB are
// optional.
type Deps struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Stores    Stores
	Blobs     blobstore.BlobStore
	Predictor prediction.Client
	Cache     prediction.Cache
	Events    events.Publisher
	DB        db.Pinger
	Audit     middleware.AuditRecorder
}

// New builds the echo instance serving the API.
func New(d Deps) *echo.Echo {
	cfg := d.Config
	logger := d.Logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.ErrorHandler(logger, apperr.HandlerOptions{
		NotFoundAsServerError: cfg.CompatNotFoundAsError,
	})

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Audit(logger, d.Audit))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})
	if d.DB != nil {
		e.GET("/health/db", db.HealthHandler(d.DB))
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Identity domain
	identitySvc := identity.NewService(d.Stores.Doctors, d.Stores.Patients)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	// Imaging domain
	opts := []imaging.Option{
		imaging.WithLogger(logger.With().Str("component", "imaging").Logger()),
		imaging.WithPredictTimeout(cfg.PredictTimeout),
	}
	if d.Cache != nil {
		opts = append(opts, imaging.WithCache(d.Cache))
	}
	if d.Events != nil {
		opts = append(opts, imaging.WithEvents(d.Events))
	}
	imagingSvc := imaging.NewService(d.Stores.Images, identitySvc, d.Blobs, d.Predictor, opts...)
	imaging.NewHandler(imagingSvc).RegisterRoutes(apiV1)

	// Reporting domain
	reportingSvc := reporting.NewService(d.Stores.Reports, imagingSvc, d.Events,
		logger.With().Str("component", "reporting").Logger())
	reporting.NewHandler(reportingSvc).RegisterRoutes(apiV1)

	return e
}
