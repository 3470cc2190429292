package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/ratelimit"
	wssignal "github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/account"
	"github.com/dkeye/Huddle/internal/app/chat"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/app/presence"
	"github.com/dkeye/Huddle/internal/app/relay"
	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/app/social"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/storage"
	"github.com/dkeye/Huddle/internal/upload"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	uploader, err := upload.NewDiskUploader(cfg.UploadDir, "/uploads", cfg.UploadMaxBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload dir")
	}

	blocks := &social.Blocks{Users: db, Store: db}
	reg := presence.NewRegistry()
	hub := orch.New(reg, rooms.NewMultiplexer(), relay.New(reg, blocks), app.PolicyByName(cfg.Backpressure))

	groups := &social.Groups{Users: db, Store: db, Uploader: uploader, Notifier: hub, Rooms: hub}
	hub.Guard = groups

	limiter := ratelimit.New[domain.UserID](rate.Limit(cfg.SignalRate), cfg.SignalBurst)
	go limiter.Run(ctx, 5*time.Minute)
	candidates := ratelimit.New[domain.UserID](rate.Limit(cfg.ICERate), cfg.ICEBurst)
	go candidates.Run(ctx, 5*time.Minute)

	deps := router.Deps{
		Accounts: &account.Service{Store: db, Uploader: uploader},
		Chat: &chat.Service{
			Users:    db,
			Messages: db,
			Groups:   db,
			Blocks:   db,
			Uploader: uploader,
			Notifier: hub,
			Presence: hub,
		},
		Friends: &social.Friends{Users: db, Store: db, Notifier: hub},
		Blocks:  blocks,
		Groups:  groups,
		Signal: wssignal.NewSignalWSController(hub, wssignal.Options{
			ReadLimit:        cfg.ReadLimit,
			PingPeriod:       cfg.PingPeriod,
			PongWait:         cfg.PongWait(),
			SendBuffer:       cfg.SendBuffer,
			CheckOrigin:      router.AllowOrigins(cfg.AllowedOrigins),
			Limiter:          limiter,
			CandidateLimiter: candidates,
		}),
	}

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	r := router.SetupRouter(ctx, cfg, deps)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-hubDone
	log.Info().Msg("Server exited gracefully")
}
