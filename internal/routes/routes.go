package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vip-club/vip_club/internal/admin"
	"github.com/vip-club/vip_club/internal/audit"
	"github.com/vip-club/vip_club/internal/backend"
	"github.com/vip-club/vip_club/internal/blob"
	"github.com/vip-club/vip_club/internal/config"
	"github.com/vip-club/vip_club/internal/dashboard"
	"github.com/vip-club/vip_club/internal/docs"
	"github.com/vip-club/vip_club/internal/middleware"
	"github.com/vip-club/vip_club/internal/notification"
	"github.com/vip-club/vip_club/internal/payments"
	"github.com/vip-club/vip_club/internal/security"
	"github.com/vip-club/vip_club/internal/settings"
	"github.com/vip-club/vip_club/internal/support"
	"github.com/vip-club/vip_club/internal/webhook"
)

// auditBuffer bounds the queue of pending user action writes.
const auditBuffer = 256

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Notifier delivers chat messages. Messages are only logged when nil.
	Notifier notification.Notifier
	// Blobs overrides the screenshot store rooted at Cfg.UploadDir.
	Blobs blob.Store
}

// Setup configures middlewares and all application routes. The returned
// Runtime owns the background workers.
func Setup(app *fiber.App, d Deps) (*Runtime, error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	rt, err := build(d)
	if err != nil {
		return nil, err
	}

	RegisterHealthRoutes(app, d)
	if local, ok := rt.blobs.(*blob.LocalStore); ok {
		app.Static("/uploads", local.Root(), fiber.Static{Browse: false})
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	idem := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	RegisterPublicRoutes(api, rt)
	RegisterUserRoutes(api, rt, d, idem)
	RegisterAdminRoutes(api, rt, d, idem)
	RegisterWebhookRoutes(app, rt)
	return rt, nil
}

// build constructs the services for the configured storage.
func build(d Deps) (*Runtime, error) {
	cfg := d.Cfg
	rt := &Runtime{logger: d.Logger}

	rt.blobs = d.Blobs
	switch {
	case rt.blobs != nil:
	case cfg.S3Bucket != "":
		bucket, err := blob.NewS3Store(blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("open screenshot bucket: %w", err)
		}
		rt.blobs = bucket
	default:
		local, err := blob.NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("open upload dir: %w", err)
		}
		rt.blobs = local
	}

	var (
		settingsStore settings.Store
		notes         notification.Store
		history       docs.History
	)
	if d.Cache != nil {
		settingsStore = settings.NewRedisStore(d.Cache)
		notes = notification.NewRedisStore(d.Cache)
		history = docs.NewRedisHistory(d.Cache)
	} else {
		settingsStore = settings.NewMemoryStore()
		notes = notification.NewMemoryStore()
		history = docs.NewMemoryHistory()
	}

	opts := backend.Options{AccessLinkBase: cfg.AccessLinkBase, Settings: settingsStore}
	var be backend.Backend
	if d.DB != nil {
		be = backend.NewPostgres(d.DB, rt.blobs, opts)
	} else {
		be = backend.NewMemory(rt.blobs, opts)
	}
	rt.backend = be

	rt.sink = audit.NewSink(be, auditBuffer, d.Logger)
	rt.bus = notification.NewBus()
	rt.hub = notification.NewHub(notes, notification.HubOptions{Logger: d.Logger})
	rt.poller = notification.NewPoller(rt.hub, notification.NewExpiryFeed(be, nil), cfg.PollInterval, d.Logger)

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}
	rt.bridge = notification.NewBridge(rt.hub, notifier, settingsStore, d.Logger)
	rt.detach = rt.bridge.Attach(rt.bus)

	rt.events = security.NewLog(nil)
	rt.monitor = security.NewMonitor(rt.events, cfg.SecurityInterval, d.Logger)

	rt.wizards = payments.NewRegistry(payments.Config{
		Backend:     be,
		Pricing:     settingsStore,
		Audit:       rt.sink,
		Bus:         rt.bus,
		VerifyDelay: cfg.VerifyDelay,
		Logger:      d.Logger,
	})

	lib, err := docs.Load()
	if err != nil {
		return nil, fmt.Errorf("load docs: %w", err)
	}
	rt.docs = docs.NewHandler(lib, history, rt.sink, d.Logger)

	rt.dashboard = dashboard.NewService(be, rt.sink)
	rt.support = support.NewService(support.Options{AckDelay: 2 * time.Second, Audit: rt.sink, Logger: d.Logger})
	rt.admin = admin.NewService(admin.Options{
		Backend:  be,
		Settings: settingsStore,
		Sessions: rt.wizards,
		Bus:      rt.bus,
		Audit:    rt.sink,
		Logger:   d.Logger,
	})
	rt.webhooks = webhook.NewProcessor(be, rt.bus, rt.sink, d.Logger, webhook.ProvidersFromConfig(cfg)...)
	return rt, nil
}

// RegisterPublicRoutes wires endpoints that need no user context.
func RegisterPublicRoutes(api fiber.Router, rt *Runtime) {
	api.Get("/docs", rt.docs.Sections)
	api.Get("/docs/:section/:slug", rt.docs.Article)

	sh := support.NewHandler(rt.support)
	api.Get("/faq", sh.FAQ)
}

// RegisterUserRoutes wires endpoints scoped to /users/:telegramId.
func RegisterUserRoutes(api fiber.Router, rt *Runtime, d Deps, idem fiber.Handler) {
	user := api.Group("/users/:telegramId", middleware.TelegramUser())

	dh := dashboard.NewHandler(rt.dashboard)
	user.Put("/profile", dh.Register)
	user.Get("/dashboard", dh.Get)
	user.Get("/access", dh.Access)
	user.Get("/access-links/:id/qr", dh.QR)

	wh := payments.NewHandler(rt.wizards, rt.events)
	uploads := middleware.RateLimit(d.Cache, "screenshot", d.Cfg.UploadsPerMinute, func(c *fiber.Ctx) string {
		return c.Params("telegramId")
	})
	user.Get("/wizard", wh.Get)
	user.Post("/wizard/start", idem, wh.Start)
	user.Post("/wizard/screenshot", uploads, wh.Screenshot)
	user.Post("/wizard/reset", wh.Reset)

	nh := notification.NewHandler(rt.hub, rt.poller)
	user.Get("/notifications", nh.List)
	user.Post("/notifications/open", nh.Open)
	user.Post("/notifications/close", nh.Close)
	user.Post("/notifications/leave", nh.Leave)
	user.Post("/notifications/read-all", nh.MarkAllRead)
	user.Post("/notifications/:id/read", nh.MarkRead)
	user.Delete("/notifications/:id", nh.Remove)
	user.Delete("/notifications", nh.Clear)

	sh := support.NewHandler(rt.support)
	user.Get("/tickets", sh.List)
	user.Post("/tickets", sh.Create)
	user.Get("/tickets/:ticketId", sh.Get)
	user.Post("/tickets/:ticketId/replies", sh.Reply)

	user.Get("/docs/search", rt.docs.Search)
	user.Get("/docs/history", rt.docs.History)

	user.Get("/security", security.NewHandler(rt.events).Activity)
}

// RegisterAdminRoutes wires the back office behind the admin key.
func RegisterAdminRoutes(api fiber.Router, rt *Runtime, d Deps, idem fiber.Handler) {
	g := api.Group("/admin", middleware.AdminKey(d.Cfg.AdminKeyHash))
	h := admin.NewHandler(rt.admin)

	g.Get("/users", h.Users)
	g.Post("/users/:id/grant", idem, h.Grant)
	g.Post("/users/:id/revoke", idem, h.Revoke)
	g.Get("/payments", h.Payments)
	g.Post("/payments/:id/approve", idem, h.Approve)
	g.Post("/payments/:id/reject", idem, h.Reject)
	g.Get("/stats", h.Stats)
	g.Get("/actions", h.Actions)
	g.Get("/export/:kind", h.Export)
	g.Get("/settings", h.GetSettings)
	g.Put("/settings", h.UpdateSettings)
	g.Post("/sessions/reset", h.ResetSessions)
	g.Post("/logs/clear", h.ClearLogs)

	sh := support.NewHandler(rt.support)
	g.Get("/tickets", sh.All)
	g.Post("/tickets/:ticketId/responses", sh.Respond)
	g.Put("/tickets/:ticketId/status", sh.SetStatus)
}

// RegisterWebhookRoutes wires provider callbacks outside the API prefix.
func RegisterWebhookRoutes(app *fiber.App, rt *Runtime) {
	app.Post("/webhooks/:provider", webhook.NewHandler(rt.webhooks).Receive)
}

// Runtime owns the long-lived services built by Setup.
type Runtime struct {
	logger *slog.Logger

	blobs     blob.Store
	backend   backend.Backend
	sink      *audit.Sink
	bus       *notification.Bus
	hub       *notification.Hub
	poller    *notification.Poller
	bridge    *notification.Bridge
	detach    func()
	events    *security.Log
	monitor   *security.Monitor
	wizards   *payments.Registry
	docs      *docs.Handler
	dashboard *dashboard.Service
	support   *support.Service
	admin     *admin.Service
	webhooks  *webhook.Processor
}

// Start launches the notification poller and the security monitor. They
// stop when ctx is cancelled.
func (rt *Runtime) Start(ctx context.Context) {
	go rt.poller.Run(ctx)
	go rt.monitor.Run(ctx)
}

// Close stops wizards, flushes pending notifications and drains the audit
// queue.
func (rt *Runtime) Close(ctx context.Context) error {
	if err := rt.wizards.Close(ctx); err != nil {
		rt.logger.Warn("wizards did not stop in time", slog.Any("error", err))
	}
	rt.detach()
	rt.bridge.Wait()
	rt.hub.Close()
	rt.support.Wait()
	return rt.sink.Close(ctx)
}
