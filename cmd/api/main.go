package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sudo-init-do/sharefood/internal/auth"
	"github.com/sudo-init-do/sharefood/internal/chat"
	"github.com/sudo-init-do/sharefood/internal/config"
	"github.com/sudo-init-do/sharefood/internal/db"
	"github.com/sudo-init-do/sharefood/internal/listing"
	appmw "github.com/sudo-init-do/sharefood/internal/middleware"
	"github.com/sudo-init-do/sharefood/internal/negotiation"
	"github.com/sudo-init-do/sharefood/internal/purge"
	"github.com/sudo-init-do/sharefood/internal/realtime"
)

func main() {
	// Init subsystems
	_ = godotenv.Load()
	cfg := config.Load()
	db.Init(cfg)

	listings := listing.NewPostgresStore(db.Conn)
	negs := negotiation.NewPostgresStore(db.Conn)
	messages := chat.NewPostgresLog(db.Conn)

	broadcaster := realtime.NewBroadcaster(negs, messages)
	engine := negotiation.NewEngine(negs, listings).
		WithNotifier(broadcaster).
		WithPurger(purge.Scheduler{})
	chatSvc := chat.NewService(messages, negs).
		WithNotifier(broadcaster).
		WithNames(chat.NewPostgresDirectory(db.Conn))

	purge.Init(cfg.RedisAddr, cfg.PurgeRetention, engine, chatSvc)
	defer purge.Close()

	auth.Use(cfg.JWTSecret)
	appmw.Use(cfg.JWTSecret)
	listing.Use(listings, cfg.SearchRadiusKm, cfg.SearchRadiusMaxKm)
	negotiation.Use(engine)
	chat.Use(chatSvc)
	realtime.Use(broadcaster)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Health
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/ready", func(c echo.Context) error {
		if db.Conn == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db not initialized"})
		}
		if err := db.Conn.Ping(context.Background()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Auth routes with per-IP rate limiting to protect signup/login from abuse
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", auth.Signup)
	authGroup.POST("/login", auth.Login)

	// Authenticated group
	g := e.Group("")
	g.Use(appmw.JWTMiddleware)

	g.GET("/me", auth.Me)

	// Listings
	g.POST("/listings", listing.CreateListing)
	g.GET("/listings/nearby", listing.FindNearby)
	g.GET("/listings/mine", listing.MyListings)
	g.POST("/listings/:id/withdraw", listing.WithdrawListing)

	// Negotiations
	g.POST("/negotiations", negotiation.OpenNegotiation)
	g.GET("/negotiations", negotiation.ListNegotiations)
	g.GET("/negotiations/:id", negotiation.GetNegotiation)
	g.POST("/negotiations/:id/deliver", negotiation.ConfirmDelivery)
	g.POST("/negotiations/:id/complete", negotiation.ConfirmReceipt)

	// Messages and realtime stream
	g.POST("/negotiations/:id/messages", chat.SendMessage)
	g.GET("/negotiations/:id/messages", chat.ListMessages)
	g.GET("/negotiations/:id/ws", realtime.NegotiationWS)

	log.Printf("API server listening on :%s", cfg.Port)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
