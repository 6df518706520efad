package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ttaflutter/game-plus/internal/api"
	"github.com/ttaflutter/game-plus/internal/config"
	"github.com/ttaflutter/game-plus/internal/lobby"
	"github.com/ttaflutter/game-plus/internal/routers"
	"github.com/ttaflutter/game-plus/internal/session"
	"github.com/ttaflutter/game-plus/internal/store"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatal("database migrate failed", zap.Error(err))
	}
	st := store.New(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("invalid redis url", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unreachable, lobby events degraded", zap.Error(err))
	}

	game, err := st.GameByName("Caro")
	if err != nil {
		log.Fatal("game seed missing", zap.Error(err))
	}

	registry := session.NewRegistry(st, log, cfg.MoveTimeout)
	notifier := lobby.NewNotifier(rdb, log)
	manager := lobby.NewManager(st, notifier, log, game.ID)

	router := routers.New(routers.Deps{
		Auth:      &api.AuthHandler{Store: st, JWTSecret: cfg.JWTSecret, Log: log},
		Lobby:     &api.LobbyHandler{Manager: manager, Log: log},
		Match:     api.NewMatchHandler(st, registry, cfg.JWTSecret, log),
		JWTSecret: cfg.JWTSecret,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}
