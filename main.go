package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"sigfox-decoder/internal/accuracy"
	"sigfox-decoder/internal/config"
	"sigfox-decoder/internal/dataset"
	"sigfox-decoder/internal/mqtt"
	"sigfox-decoder/internal/observability"
	"sigfox-decoder/internal/packet"
	"sigfox-decoder/internal/serial"
	"sigfox-decoder/internal/service"
	"sigfox-decoder/internal/sigfox"
	"sigfox-decoder/internal/simulator"
	"sigfox-decoder/internal/udp"
	"sigfox-decoder/internal/web"
)

const (
	serviceName     = "sigfox-decoder"
	shutdownTimeout = 2 * time.Second
)

var version = "dev" //nolint:gochecknoglobals

func setupLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	slog.SetDefault(logger)

	return logger
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.FromFlags()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Println(serviceName, version) //nolint:forbidigo

		return
	}

	if err := run(cfg); err != nil {
		slog.Error("exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := setupLogger(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting", "version", version, "source", cfg.Source.URL, "http", cfg.HTTPServer.Addr)

	emitter := packet.NewEventEmitter()
	defer emitter.Close()

	stats := dataset.NewStats()

	client := sigfox.NewClient(sigfox.Options{
		URL:     cfg.Source.URL,
		Timeout: cfg.Source.Timeout,
		Retries: cfg.Source.Retries,
		Backoff: cfg.Source.Backoff,
	})
	svc := service.New(client, cfg.Cache.TTL, accuracy.New())

	g, gCtx := errgroup.WithContext(ctx)

	serverHTTP := web.New(gCtx, web.Options{
		Addr:           cfg.HTTPServer.Addr,
		AllowedOrigins: cfg.HTTPServer.Origins(),
	}, svc, emitter, stats)

	if cfg.Metrics.PushURL != "" {
		if err := observability.InitPush(gCtx, cfg.Metrics.PushURL, cfg.Metrics.PushInterval, serviceName); err != nil {
			return err
		}
	}

	if cfg.Simulator.Enable {
		gen := simulator.NewGenerator(uint64(time.Now().UnixNano()), cfg.Simulator.Size) //nolint:gosec

		g.Go(func() error {
			return simulator.Run(gCtx, cfg.Simulator.Addr, gen)
		})
	}

	if cfg.UDPServer.Enable {
		serverUDP, err := udp.Listen(cfg.UDPServer.Port)
		if err != nil {
			return err
		}

		defer serverUDP.Close()

		g.Go(func() error {
			return serverUDP.Serve(gCtx, emitter)
		})
	}

	if cfg.Serial.Enable {
		serialSvc := serial.New(cfg.Serial.PortName, cfg.Serial.BaudRate, cfg.Serial.Tag)

		g.Go(func() error {
			return serialSvc.Run(gCtx, emitter)
		})
	}

	if cfg.MQTT.Enable {
		mqttSvc := mqtt.New(cfg.MQTT, emitter)

		defer func() {
			if err := mqttSvc.Close(); err != nil {
				logger.Warn("mqtt close", "error", err)
			}
		}()

		g.Go(func() error {
			return mqttSvc.Run(gCtx)
		})
	}

	g.Go(func() error {
		return stats.Subscribe(gCtx, emitter)
	})

	g.Go(func() error {
		return stats.Clear(gCtx, cfg.Stats.ClearInterval, cfg.Stats.Retention)
	})

	if cfg.Poller.Enable {
		g.Go(func() error {
			return svc.Poll(gCtx, cfg.Poller.Interval, emitter)
		})
	}

	g.Go(func() error {
		logger.InfoContext(gCtx, "listening on "+serverHTTP.Addr)

		return serverHTTP.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
		defer cancel()

		return serverHTTP.Shutdown(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
