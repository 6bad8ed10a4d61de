package app

import (
	"fmt"
	"strings"

	"regcrawl/internal/config"
	"regcrawl/internal/delivery/http/handler"
	"regcrawl/internal/delivery/http/middleware"
	"regcrawl/internal/delivery/http/routes"
	"regcrawl/internal/pkg/jwt"
	"regcrawl/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func Bootstrap(cfg config.Config) (*App, func() error, error) {
	c, err := NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}

	f := fiber.New(fiber.Config{AppName: cfg.App.AppName})

	errMw := middleware.NewErrorMiddleware()
	f.Use(errMw.Middleware())
	f.Use(middleware.NewAccessLogMiddleware(c.Logger).Middleware())

	jwtSvc := jwt.NewHMACService(cfg.Auth.JWTSecret)

	reg := &routes.Registry{
		Health:      handler.NewHealthHandler(c.DB, c.Cache),
		Crawl:       handler.NewCrawlHandler(c.Orch, cfg.Crawl.KeywordsFile, c.Logger),
		Checkpoints: handler.NewCheckpointHandler(c.Checkpoints),
		Auth:        middleware.NewAuthMiddleware(jwtSvc),
		WS:          ws.NewHandler(c.Hub, c.Logger),
	}
	reg.Register(f)

	go c.Hub.Run()

	return &App{Fiber: f, Container: c}, c.Close, nil
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
