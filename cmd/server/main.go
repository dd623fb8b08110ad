package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/slidecast/backend/internal/config"
	"github.com/slidecast/backend/internal/feedback"
	"github.com/slidecast/backend/internal/health"
	"github.com/slidecast/backend/internal/httpapi"
	"github.com/slidecast/backend/internal/mock"
	"github.com/slidecast/backend/internal/observe"
	"github.com/slidecast/backend/internal/session"
	"github.com/slidecast/backend/internal/slide"
	"github.com/slidecast/backend/internal/stream"
	"github.com/slidecast/backend/internal/sweep"
)

func main() {
	mockMode := flag.Bool("mock", false, "Generate demo session traffic")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	logger := observe.InitLogger("slidecast")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	observe.Register()

	registry := session.NewRegistry(cfg.Session.TTL)
	fblog := feedback.NewLog(registry)
	slides := slide.NewChannel(registry)
	events := stream.NewEvents(registry, fblog, cfg.Stream.KeepaliveInterval, cfg.Stream.PollInterval)
	observe.RegisterStreamTasks(func() float64 { return float64(events.ActiveTasks()) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := sweep.New(registry, fblog, slides, cfg.Session.SweepInterval)
	go sweeper.Run(ctx)

	if *mockMode {
		logger.Info().Msg("starting in mock mode")
		gen := mock.NewGenerator(registry, fblog, slides)
		go gen.Start(ctx)
	}

	server := httpapi.NewServer(cfg, registry, fblog, slides, events, health.NewProbe())
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutting down")
		cancel()
		os.Exit(0)
	}()

	if err := httpapi.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
