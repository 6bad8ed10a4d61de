// Package app wires configuration, storage, crawler types and the HTTP
// surface together.
package app

import (
	"context"
	"log"
	"os"
	"time"

	"regcrawl/internal/checkpoint"
	"regcrawl/internal/config"
	"regcrawl/internal/crawler"
	"regcrawl/internal/database"
	dbpostgres "regcrawl/internal/database/postgres"
	"regcrawl/internal/dedup"
	"regcrawl/internal/infrastructure/cache"
	"regcrawl/internal/orchestrator"
	"regcrawl/internal/repository"
	"regcrawl/internal/source/customs"
	"regcrawl/internal/source/guidance"
	"regcrawl/internal/source/openfda"
	"regcrawl/internal/ws"
)

type Container struct {
	Config      config.Config
	Logger      *log.Logger
	DB          database.DB
	Cache       *cache.Redis
	Checkpoints *checkpoint.PostgresStore
	Orch        *orchestrator.Orchestrator
	Hub         *ws.Hub
}

func NewContainer(cfg config.Config) (*Container, error) {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Cache:       cache.NewRedis(cfg.Redis, logger),
		Checkpoints: checkpoint.NewPostgresStore(db),
		Hub:         ws.NewHub(logger),
	}
	c.Orch = c.buildOrchestrator()
	return c, nil
}

// buildOrchestrator registers the six crawler types. Each type owns its
// fetcher and controller; the database and the dedup cache are the only
// shared pieces.
func (c *Container) buildOrchestrator() *orchestrator.Orchestrator {
	cfg := c.Config.Crawl
	orch := orchestrator.New(cfg.JoinTimeout, c.Logger)
	notifier := ws.NewProgressNotifier(c.Hub)

	fdaClient := openfda.NewClient(openfda.DefaultBaseURL, cfg.OpenFDAAPIKey, c.Logger)

	register := func(
		crawlerType string,
		pageSizeCap int,
		fetcher crawler.PageFetcher,
		normalizer crawler.Normalizer,
		repo interface {
			crawler.DuplicateChecker
			crawler.BatchWriter
		},
		roles []crawler.FieldRole,
		defaultQuery string,
	) {
		checker := dedup.NewChecker(crawlerType, repo, c.Cache, c.Logger)
		opts := crawler.Options{
			CrawlerType:          crawlerType,
			PageSizeCap:          pageSizeCap,
			DuplicateStreakLimit: cfg.DuplicateStreak,
		}
		ctrl := crawler.NewController(opts, fetcher, normalizer, checker, repo, c.Checkpoints, c.Logger)
		ctrl.SetObserver(notifier)
		orch.Register(crawlerType, crawler.NewFanout(ctrl, roles, defaultQuery, c.Logger))
	}

	s510k := openfda.NewDevice510K(fdaClient, c.Logger)
	register(openfda.Device510KType, openfda.Device510KPageCap, s510k, s510k,
		repository.NewPostgresDevice510KRepository(c.DB, c.Logger),
		openfda.Device510KRoles(), openfda.Device510KDefaultQuery)

	sEvent := openfda.NewDeviceEvent(fdaClient, c.Logger)
	register(openfda.DeviceEventType, openfda.DeviceEventPageCap, sEvent, sEvent,
		repository.NewPostgresDeviceEventRepository(c.DB, c.Logger),
		openfda.DeviceEventRoles(), openfda.DeviceEventDefaultQuery)

	sRecall := openfda.NewDeviceRecall(fdaClient, c.Logger)
	register(openfda.DeviceRecallType, openfda.DeviceRecallPageCap, sRecall, sRecall,
		repository.NewPostgresDeviceRecallRepository(c.DB, c.Logger),
		openfda.DeviceRecallRoles(), openfda.DeviceRecallDefaultQuery)

	sReg := openfda.NewDeviceRegistration(fdaClient, c.Logger)
	register(openfda.DeviceRegistrationType, openfda.DeviceRegistrationPageCap, sReg, sReg,
		repository.NewPostgresDeviceRegistrationRepository(c.DB, c.Logger),
		openfda.DeviceRegistrationRoles(), openfda.DeviceRegistrationDefaultQuery)

	sGuidance := guidance.NewSource("", c.Logger)
	register(guidance.Type, guidance.PageCap, sGuidance, sGuidance,
		repository.NewPostgresGuidanceRepository(c.DB, c.Logger),
		guidance.Roles(), guidance.DefaultQuery)

	sCustoms := customs.NewSource("", true, c.Logger)
	register(customs.Type, customs.PageCap, sCustoms, sCustoms,
		repository.NewPostgresCustomsRepository(c.DB, c.Logger),
		customs.Roles(), customs.DefaultQuery)

	return orch
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
