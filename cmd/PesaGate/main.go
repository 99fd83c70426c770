// Package main is the entry point of the PesaGate payment gateway.
// It initializes the Kratos application with the HTTP server, the
// resilience layer and the reconciliation cron.
package main

import (
	"context"
	"flag"
	"os"

	"PesaGate/internal/biz"
	"PesaGate/internal/conf"
	zapLogger "PesaGate/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/robfig/cron/v3"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "PesaGate"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(bc *conf.Bootstrap, logger log.Logger, hs *http.Server, resilience *biz.Resilience, task *biz.ReconcileTask) *kratos.App {
	var reconcileCron *cron.Cron

	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
		kratos.BeforeStart(func(ctx context.Context) error {
			if err := resilience.Start(ctx); err != nil {
				return err
			}
			reconcileCron = StartReconcileCron(bc, task, logger)
			return nil
		}),
		kratos.AfterStop(func(ctx context.Context) error {
			if reconcileCron != nil {
				<-reconcileCron.Stop().Done()
			}
			return resilience.Stop(ctx)
		}),
	)
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable and CLI flag support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	// Add context fields to logger
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	// Log startup configuration
	log.NewHelper(logger).Infow(
		"msg", "PesaGate gateway starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"default_provider", bc.Gateway.DefaultProvider,
		"providers", len(bc.Providers),
	)

	app, cleanup, err := wireApp(bc, bc.Data, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
