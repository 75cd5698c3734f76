// Command carebridge runs the wellness check-in call bridge: a WebSocket
// media-stream endpoint that converses with callers through speech
// recognition, an LLM agent, and speech synthesis.
//
// Usage:
//
//	export OPENAI_API_KEY=sk-...
//	export ELEVENLABS_API_KEY=...
//	carebridge --config carebridge.yaml
//
// Point the telephony provider's voice webhook at POST /voice; the returned
// TwiML connects the answered call's media stream to /media-stream on the
// same host. Prometheus metrics are served separately on the metricsListen
// address. `carebridge version` prints build information.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AltairaLabs/CareBridge/config"
	"github.com/AltairaLabs/CareBridge/logger"
	"github.com/AltairaLabs/CareBridge/version"
)

var (
	configPath = flag.String("config", "carebridge.yaml", "BridgeConfig manifest path")
	listenAddr = flag.String("listen", "", "WebSocket listen address (overrides the manifest)")
	logLevel   = flag.String("log-level", "", "Log level: trace, debug, info, warn, or error (overrides the manifest)")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Get())
		return
	}
	flag.Parse()

	if *logLevel != "" {
		if !logger.ValidLevel(*logLevel) {
			fmt.Fprintf(os.Stderr, "Error: unknown log level %q\n", *logLevel)
			os.Exit(1)
		}
		logger.SetLevel(logger.ParseLevel(*logLevel))
	}
	version.LogStartup()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listenAddr != "" {
		cfg.Spec.Listen = *listenAddr
	}
	if *logLevel != "" {
		cfg.Spec.Logging.Level = *logLevel
	}
	logger.Configure(cfg.Spec.LoggerOptions())

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	return app.run(ctx)
}
