package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos/internal/config"
	"pos/internal/domain/model"
	"pos/internal/handler"
	"pos/internal/infra/api"
	"pos/internal/infra/db"
	"pos/internal/infra/logger"
	infraRepo "pos/internal/infra/repository"
	"pos/internal/metrics"
	repo "pos/internal/repository"
	"pos/internal/server"
	"pos/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	//.envは無くてもよい
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.IsProd())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatalw("pos api stopped", "error", err)
	}
}

func run(cfg config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//保存先（カート種別ごとにnamespaceを分ける）
	salesRepo, purchaseRepo, err := newSnapshotRepositories(cfg, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	idGen := &uuidGenerator{}
	clock := &realClock{}

	salesStore := usecase.NewCartStore(salesRepo, idGen, clock, usecase.CartStoreOptions{
		Namespace:         model.SalesCartNamespace,
		DefaultNamePrefix: "Carrito",
		RetryInterval:     cfg.PersistRetryInterval,
		Logger:            log,
		Observer:          m,
	})
	purchaseStore := usecase.NewCartStore(purchaseRepo, idGen, clock, usecase.CartStoreOptions{
		Namespace:         model.PurchaseCartNamespace,
		DefaultNamePrefix: "Compra",
		RetryInterval:     cfg.PersistRetryInterval,
		Logger:            log,
		Observer:          m,
	})
	defer closeStores(log, salesStore, purchaseStore)

	if err := salesStore.Load(ctx); err != nil {
		return err
	}
	if err := purchaseStore.Load(ctx); err != nil {
		return err
	}

	salesAPI := api.NewSalesClient(cfg.APIBaseURL, cfg.APITimeout)
	checkoutUC := usecase.NewCheckoutUsecase(salesStore, purchaseStore, salesAPI, log)

	e := server.New(log, m, server.Handlers{
		SalesCart:    handler.NewCartHandler(salesStore),
		PurchaseCart: handler.NewCartHandler(purchaseStore),
		Checkout:     handler.NewCheckoutHandler(checkoutUC),
	})

	log.Infow("pos api listening", "addr", cfg.Addr(), "snapshot_driver", cfg.SnapshotDriver)
	return server.Start(ctx, e, cfg.Addr())
}

func newSnapshotRepositories(cfg config.Config, log *zap.SugaredLogger) (repo.SnapshotRepository, repo.SnapshotRepository, error) {
	if cfg.SnapshotDriver == config.SnapshotDriverMemory {
		log.Warnw("using in-memory cart snapshots, carts are lost on restart")
		return infraRepo.NewSnapshotMemoryRepository(), infraRepo.NewSnapshotMemoryRepository(), nil
	}

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := infraRepo.MigrateSnapshots(gormDB); err != nil {
		return nil, nil, err
	}

	return infraRepo.NewSnapshotGormRepository(gormDB, model.SalesCartNamespace),
		infraRepo.NewSnapshotGormRepository(gormDB, model.PurchaseCartNamespace),
		nil
}

// 最後の状態を書いてから終わる
func closeStores(log *zap.SugaredLogger, stores ...*usecase.CartStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, s := range stores {
		if err := s.Close(ctx); err != nil {
			log.Errorw("final cart snapshot save failed", "error", err)
		}
	}
}
