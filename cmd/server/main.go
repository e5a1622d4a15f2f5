package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/aFirmae/Scribe/internal/cache"
	"github.com/aFirmae/Scribe/internal/config"
	"github.com/aFirmae/Scribe/internal/handler"
	"github.com/aFirmae/Scribe/internal/hub"
	"github.com/aFirmae/Scribe/internal/log"
	"github.com/aFirmae/Scribe/internal/repository"
	"github.com/aFirmae/Scribe/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.L().Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting scribe")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewMongoRoomRepository(ctx, cfg.Mongo)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize room repository")
	}
	defer repo.Close(context.Background())
	l.Info().Str("uri", cfg.Mongo.URI).Str("database", cfg.Mongo.Database).Msg("connected to mongo")

	roomCache, err := cache.NewRedisRoomCache(cfg.Redis)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize room cache")
	}
	defer roomCache.Close()
	l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")

	wsHub := hub.NewHub()
	roomService := service.NewRoomService(repo, roomCache, wsHub, cfg.Room, cfg.Redis.CacheTTL)
	sweeper := service.NewSweeper(repo, roomCache, wsHub, cfg.Room)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler.NewHTTPHandler(roomService).RegisterRoutes(router)
	handler.NewWSHandler(wsHub, roomService, cfg.WebSocket).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		err := sweeper.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		l.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Error().Err(err).Msg("server exited with error")
	}

	l.Info().Msg("scribe stopped")
}
