// Package app wires configuration, stores and HTTP routes into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory/internal/config"
	"inventory/internal/handlers"
	"inventory/internal/logger"
	"inventory/internal/middleware"
	"inventory/internal/models"
	"inventory/internal/repositories"
	"inventory/internal/services"
	"inventory/internal/storage"
	"inventory/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultBodyLimit = 4 * 1024 * 1024

// App is the assembled service.
type App struct {
	Fiber *fiber.App
	Auth  *services.AuthService

	events  *rabbitmq.Client
	closers []func(context.Context) error
	log     *zap.Logger
}

type stores struct {
	products repositories.ProductRepository
	users    repositories.UserRepository
	close    func(context.Context) error
}

// NewApp opens the configured stores and registers every route.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{log: log}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.close)

	images, err := openImageStore(ctx, cfg)
	if err != nil {
		a.closeAll(ctx)
		return nil, err
	}

	var events services.EventPublisher
	if cfg.RabbitMQURL != "" {
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, log.Named("rabbitmq"))
		if err != nil {
			log.Error("product events disabled, broker unavailable", zap.Error(err))
		} else {
			a.events = client
			events = client
			a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		}
	}

	a.Auth = services.NewAuthService(st.users, cfg.JWTSecret, cfg.JWTTTL)
	query := services.NewProductQueryService(st.products, st.users, log.Named("products"))
	command := services.NewProductCommandService(st.products, st.users, images, events, log.Named("products"), services.CommandOptions{
		MaxImageBytes:    cfg.UploadMaxBytes,
		EnforceOwnership: cfg.EnforceOwnership,
	})

	bodyLimit := defaultBodyLimit
	if limit := int(cfg.UploadMaxBytes) + 1024*1024; limit > bodyLimit {
		bodyLimit = limit
	}
	app := fiber.New(fiber.Config{
		AppName:      "inventory",
		BodyLimit:    bodyLimit,
		ErrorHandler: handlers.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{ContextKey: logger.RequestIDKey}))
	app.Use(middleware.RequestLogger(log.Named("http")))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	if local, ok := images.(*storage.LocalStore); ok {
		app.Static(storage.LocalURLPrefix, local.Dir())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
			"events": a.events != nil,
		})
	})

	api := app.Group("/api")
	authHandler := handlers.NewAuthHandler(a.Auth, log.Named("auth"))
	authHandler.RegisterRoutes(api)

	protected := api.Group("", middleware.AuthRequired(a.Auth, log.Named("auth")))
	authHandler.RegisterProtectedRoutes(protected)
	handlers.NewProductHandler(query, command, log.Named("products")).RegisterRoutes(protected)

	a.Fiber = app
	return a, nil
}

// ConsumeLowStockAlerts logs every low-stock alert from the broker. It is a no-op without one.
func (a *App) ConsumeLowStockAlerts() error {
	if a.events == nil {
		return nil
	}
	alerts := a.log.Named("alerts")
	return a.events.ConsumeLowStockAlerts(func(e models.ProductEvent) error {
		alerts.Warn("low stock",
			zap.String("product_id", e.ProductID),
			zap.String("sku", e.SKU),
			zap.String("name", e.Name),
			zap.Int("quantity", e.Quantity),
			zap.Int("threshold", e.LowStockThreshold),
		)
		return nil
	})
}

// Shutdown stops the HTTP server, then closes the broker and the stores.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Fiber != nil {
		if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := a.closeAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	switch cfg.DatabaseDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return &stores{
			products: repositories.NewMockProductRepository(),
			users:    repositories.NewMockUserRepository(),
			close:    func(context.Context) error { return nil },
		}, nil
	case config.DriverMongo:
		return openMongo(ctx, cfg)
	default:
		return openGORM(cfg)
	}
}

func openGORM(cfg *config.Config) (*stores, error) {
	var dialector gorm.Dialector
	if cfg.DatabaseDriver == config.DriverPostgres {
		dialector = postgres.Open(cfg.DatabaseDSN)
	} else {
		dialector = sqlite.Open(cfg.DatabaseDSN)
	}

	logLevel := gormlogger.Warn
	if cfg.IsProduction() {
		logLevel = gormlogger.Error
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Product{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &stores{
		products: repositories.NewGORMProductRepository(db),
		users:    repositories.NewGORMUserRepository(db),
		close: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (*stores, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	products := repositories.NewMongoProductRepository(db)
	users := repositories.NewMongoUserRepository(db)
	if err := products.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if err := users.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &stores{
		products: products,
		users:    users,
		close:    client.Disconnect,
	}, nil
}

func openImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	if cfg.ImageStore == config.ImageStoreS3 {
		s3cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
		}
		client, err := storage.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(client, s3cfg), nil
	}

	local, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upload dir: %w", err)
	}
	return local, nil
}
