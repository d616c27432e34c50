package main

import (
	"context"
	"log"
	"os"

	"github.com/karttahq/kartta/config"
	"github.com/karttahq/kartta/telemetry"
)

// initTelemetry initializes OTEL for Kartta
// Can be disabled with KARTTA_TELEMETRY_DISABLED=true
func initTelemetry(ctx context.Context, cfg *config.Config) func() {
	if os.Getenv("KARTTA_TELEMETRY_DISABLED") == "true" {
		return func() {}
	}

	tcfg := telemetry.Config{
		ServiceName:    "kartta",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTELEndpoint:   cfg.Telemetry.OTELEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	}
	if tcfg.Environment == "" {
		tcfg.Environment = os.Getenv("KARTTA_ENVIRONMENT")
	}

	shutdown, err := telemetry.InitOTEL(ctx, tcfg)
	if err != nil {
		// Telemetry failures never block discovery.
		log.Printf("telemetry initialization failed, running without: %v", err)
		return func() {}
	}

	return func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("error shutting down telemetry: %v", err)
		}
	}
}
