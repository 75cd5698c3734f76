package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/AltairaLabs/CareBridge/agent"
	"github.com/AltairaLabs/CareBridge/assessment"
	"github.com/AltairaLabs/CareBridge/bridge"
	"github.com/AltairaLabs/CareBridge/config"
	"github.com/AltairaLabs/CareBridge/credentials"
	"github.com/AltairaLabs/CareBridge/events"
	"github.com/AltairaLabs/CareBridge/logger"
	"github.com/AltairaLabs/CareBridge/metrics/prometheus"
	"github.com/AltairaLabs/CareBridge/profile"
	"github.com/AltairaLabs/CareBridge/recording"
	"github.com/AltairaLabs/CareBridge/stt"
	"github.com/AltairaLabs/CareBridge/telemetry"
	"github.com/AltairaLabs/CareBridge/transcript"
	"github.com/AltairaLabs/CareBridge/transport"
	"github.com/AltairaLabs/CareBridge/tts"
	"github.com/AltairaLabs/CareBridge/version"
)

const (
	serviceName = "carebridge"

	streamPath = "/media-stream"
	voicePath  = "/voice"

	readHeaderTimeout = 10 * time.Second
	redisPingTimeout  = 5 * time.Second

	// shutdownGrace bounds the drain of live calls and listeners after a
	// termination signal.
	shutdownGrace = 30 * time.Second
)

// app owns every long-lived component of a running bridge and the wiring
// between them. buildApp assembles it from a loaded manifest; run serves
// until the context is cancelled; close releases what run does not.
type app struct {
	cfg *config.BridgeConfig

	// session is the per-call configuration template; handleStream copies
	// it and fills the per-call fields.
	session bridge.SessionConfig
	collab  bridge.Collaborators
	turnSem *semaphore.Weighted

	bus      *events.EventBus
	exporter *prometheus.Exporter
	wsServer *transport.Server
	httpSrv  *http.Server
	recorder *recording.Recorder
	assessor *assessment.Assessor
	rdb      *redis.Client
	tracers  *sdktrace.TracerProvider
}

// buildApp wires a bridge from configuration. Everything that can fail does
// so here, before the first call connects.
func buildApp(ctx context.Context, cfg *config.BridgeConfig) (*app, error) {
	a := &app{cfg: cfg}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	if err := a.buildSessionTemplate(); err != nil {
		return nil, err
	}
	if err := a.buildObservability(ctx); err != nil {
		return nil, err
	}
	if err := a.buildStores(ctx); err != nil {
		return nil, err
	}
	if err := a.buildSpeech(ctx); err != nil {
		return nil, err
	}
	if err := a.buildAgent(ctx); err != nil {
		return nil, err
	}

	if cfg.Spec.Recording.Enabled {
		rec, err := recording.NewRecorder(cfg.Spec.Recording.Dir)
		if err != nil {
			return nil, err
		}
		a.recorder = rec
		logger.Info("call recording enabled", "dir", rec.Dir())
	}

	assessCfg, err := cfg.Spec.AssessmentConfig()
	if err != nil {
		return nil, err
	}
	a.assessor = assessment.NewAssessor(a.collab.Agent, a.collab.Profiles, a.collab.Transcripts, a.bus, assessCfg)
	a.collab.Bus = a.bus
	a.collab.OnEnded = a.assessor.Submit

	a.turnSem = semaphore.NewWeighted(int64(cfg.Spec.MaxConcurrentTurns))

	ws, err := transport.NewServer(a.handleStream, transport.WithBus(a.bus))
	if err != nil {
		return nil, err
	}
	a.wsServer = ws

	mux := http.NewServeMux()
	mux.Handle(streamPath, ws)
	mux.Handle(voicePath, transport.VoiceHandler(streamPath))
	a.httpSrv = &http.Server{
		Addr:              cfg.Spec.Listen,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	built = true
	return a, nil
}

// buildSessionTemplate materializes every tunable the manifest names into
// the parameter structs sessions are created from.
func (a *app) buildSessionTemplate() error {
	spec := &a.cfg.Spec

	gate, err := spec.GateParams()
	if err != nil {
		return err
	}
	transcoder, err := spec.TranscoderParams()
	if err != nil {
		return err
	}
	turns, err := spec.TurnParams()
	if err != nil {
		return err
	}
	call, err := spec.CallParams()
	if err != nil {
		return err
	}
	dispatcher, err := spec.DispatcherParams()
	if err != nil {
		return err
	}

	a.session = bridge.SessionConfig{
		Gate:          gate,
		Transcoder:    transcoder,
		Turns:         turns,
		Call:          call,
		Dispatcher:    dispatcher,
		Transcription: spec.TranscriptionConfig(),
		Synthesis:     spec.SynthesisConfig(),
	}
	return nil
}

// buildObservability starts the event bus and its listeners: metrics
// always, trace spans when telemetry is enabled.
func (a *app) buildObservability(ctx context.Context) error {
	a.bus = events.NewEventBus()
	metricsListener := prometheus.NewMetricsListener()
	a.bus.SubscribeAll(metricsListener.Handle)

	if a.cfg.Spec.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, a.cfg.Spec.Telemetry.Endpoint, serviceName, version.Get().Version)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		a.tracers = tp
		telemetry.SetupPropagation()
		spans := telemetry.NewOTelEventListener(telemetry.Tracer(tp))
		a.bus.SubscribeAll(spans.OnEvent)
		logger.Info("trace export enabled", "endpoint", a.cfg.Spec.Telemetry.Endpoint)
	}

	a.exporter = prometheus.NewExporter(a.cfg.Spec.MetricsListen)
	return nil
}

// buildStores loads the caller roster and, when the cache is enabled, wraps
// it in the Redis context cache and moves transcripts to Redis as well.
func (a *app) buildStores(ctx context.Context) error {
	roster, err := a.cfg.RosterStore()
	if err != nil {
		return err
	}
	logger.Info("caller roster loaded", "callers", len(a.cfg.Roster))

	var profiles profile.Store = roster
	var transcripts transcript.Store = transcript.NewMemoryStore()

	cache := &a.cfg.Spec.Cache
	if cache.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cache.Addr,
			Password: cache.Password,
			DB:       cache.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis %s: %w", cache.Addr, err)
		}
		a.rdb = rdb

		opts, err := a.cfg.Spec.CacheOptions()
		if err != nil {
			return err
		}
		profiles = profile.NewCachedStore(roster, rdb, opts...)

		var topts []transcript.RedisOption
		if cache.Prefix != "" {
			topts = append(topts, transcript.WithPrefix(cache.Prefix))
		}
		transcripts = transcript.NewRedisStore(rdb, topts...)
		logger.Info("context cache enabled", "addr", cache.Addr)
	}

	a.collab.Profiles = profiles
	a.collab.Transcripts = transcripts
	return nil
}

// buildSpeech resolves keys for and constructs the STT and TTS adapters.
func (a *app) buildSpeech(ctx context.Context) error {
	p := &a.cfg.Spec.Providers

	sttKey, err := credentials.ResolveKey(ctx, credentials.KeyConfig{
		Provider:  config.ProviderOpenAI,
		Value:     p.STT.APIKey,
		File:      p.STT.APIKeyFile,
		EnvVar:    p.STT.APIKeyEnv,
		SecretRef: p.STT.APIKeySecret,
		ConfigDir: a.cfg.Dir,
	})
	if err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	var sttOpts []stt.OpenAIOption
	if p.STT.BaseURL != "" {
		sttOpts = append(sttOpts, stt.WithOpenAIBaseURL(p.STT.BaseURL))
	}
	a.collab.STT = stt.NewOpenAI(sttKey.Value, sttOpts...)
	logger.Info("stt provider ready", "provider", a.collab.STT.Name(), "key", sttKey)

	ttsProvider := p.TTS.Provider
	if ttsProvider == "" {
		ttsProvider = config.ProviderElevenLabs
	}
	ttsKey, err := credentials.ResolveKey(ctx, credentials.KeyConfig{
		Provider:  ttsProvider,
		Value:     p.TTS.APIKey,
		File:      p.TTS.APIKeyFile,
		EnvVar:    p.TTS.APIKeyEnv,
		SecretRef: p.TTS.APIKeySecret,
		ConfigDir: a.cfg.Dir,
	})
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	switch ttsProvider {
	case config.ProviderElevenLabs:
		var opts []tts.ElevenLabsOption
		if p.TTS.BaseURL != "" {
			opts = append(opts, tts.WithElevenLabsBaseURL(p.TTS.BaseURL))
		}
		a.collab.TTS = tts.NewElevenLabs(ttsKey.Value, opts...)
	case config.ProviderOpenAI:
		var opts []tts.OpenAIOption
		if p.TTS.BaseURL != "" {
			opts = append(opts, tts.WithOpenAIBaseURL(p.TTS.BaseURL))
		}
		a.collab.TTS = tts.NewOpenAI(ttsKey.Value, opts...)
	default:
		return fmt.Errorf("tts: unsupported provider %q", ttsProvider)
	}
	logger.Info("tts provider ready", "provider", a.collab.TTS.Name(), "key", ttsKey)
	return nil
}

// buildAgent constructs the conversation agent. Bedrock authenticates with
// AWS credentials (optionally assuming a role) instead of an API key.
func (a *app) buildAgent(ctx context.Context) error {
	p := &a.cfg.Spec.Providers.Agent

	switch p.Provider {
	case "", config.ProviderOpenAI:
		key, err := credentials.ResolveKey(ctx, credentials.KeyConfig{
			Provider:  config.ProviderOpenAI,
			Value:     p.APIKey,
			File:      p.APIKeyFile,
			EnvVar:    p.APIKeyEnv,
			SecretRef: p.APIKeySecret,
			ConfigDir: a.cfg.Dir,
		})
		if err != nil {
			return fmt.Errorf("agent: %w", err)
		}
		var opts []agent.OpenAIOption
		if p.BaseURL != "" {
			opts = append(opts, agent.WithOpenAIBaseURL(p.BaseURL))
		}
		if p.Model != "" {
			opts = append(opts, agent.WithOpenAIModel(p.Model))
		}
		if p.Temperature != nil {
			opts = append(opts, agent.WithOpenAITemperature(*p.Temperature))
		}
		if p.MaxTokens > 0 {
			opts = append(opts, agent.WithOpenAIMaxTokens(p.MaxTokens))
		}
		a.collab.Agent = agent.NewOpenAI(key.Value, opts...)
		logger.Info("agent provider ready", "provider", a.collab.Agent.Name(), "key", key)

	case config.ProviderBedrock:
		var cred credentials.Credential
		var err error
		if p.RoleARN != "" {
			cred, err = credentials.NewAWSCredentialWithRole(ctx, p.Region, p.RoleARN)
		} else {
			cred, err = credentials.NewAWSCredential(ctx, p.Region)
		}
		if err != nil {
			return fmt.Errorf("agent: %w", err)
		}
		var opts []agent.BedrockOption
		if p.BaseURL != "" {
			opts = append(opts, agent.WithBedrockBaseURL(p.BaseURL))
		}
		if p.Model != "" {
			opts = append(opts, agent.WithBedrockModel(p.Model))
		}
		if p.Temperature != nil {
			opts = append(opts, agent.WithBedrockTemperature(*p.Temperature))
		}
		if p.MaxTokens > 0 {
			opts = append(opts, agent.WithBedrockMaxTokens(p.MaxTokens))
		}
		a.collab.Agent = agent.NewBedrock(cred, p.Region, opts...)
		logger.Info("agent provider ready", "provider", a.collab.Agent.Name(), "region", p.Region)

	default:
		return fmt.Errorf("agent: unsupported provider %q", p.Provider)
	}
	return nil
}

// handleStream creates and launches a session for one started media stream.
// It is the transport server's Handler.
func (a *app) handleStream(ctx context.Context, start transport.StreamStart, writer bridge.MediaWriter) (transport.Stream, error) {
	sc := a.session
	sc.StreamSID = start.StreamSID
	sc.CallSID = start.CallSID
	sc.Caller = start.Caller
	sc.Writer = writer
	sc.TurnSem = a.turnSem

	collab := a.collab
	var capture *recording.Capture
	if a.recorder != nil {
		callSID := start.CallSID
		if callSID == "" {
			callSID = start.StreamSID
		}
		c, err := a.recorder.Begin(callSID, start.StreamSID)
		if err != nil {
			// The call proceeds unrecorded rather than failing.
			logger.Warn("call capture unavailable", "call_sid", callSID, "error", err)
		} else {
			capture = c
			collab.Tap = capture
		}
	}

	sess, err := bridge.NewSession(sc, collab)
	if err != nil {
		if capture != nil {
			_ = capture.Close()
		}
		return nil, err
	}
	if capture != nil {
		go func() {
			<-sess.Done()
			if err := capture.Close(); err != nil {
				logger.Warn("call capture close failed", "session_id", sess.ID(), "error", err)
			}
		}()
	}

	go func() { _ = sess.Run(ctx) }()
	return sess, nil
}

// run serves the media-stream endpoint and the metrics exporter until the
// context is cancelled, then drains live calls within the grace period.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("media stream server listening", "addr", a.httpSrv.Addr)
		err := a.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("media server: %w", err)
	})

	g.Go(func() error {
		err := a.exporter.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "grace", shutdownGrace)

		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		// Stop accepting new calls first, then end the live sessions. The
		// exporter stays up so the drain is visible in metrics.
		if err := a.httpSrv.Shutdown(shutCtx); err != nil {
			logger.Warn("media server shutdown", "error", err)
		}
		if err := a.wsServer.Shutdown(shutCtx); err != nil {
			logger.Warn("session drain incomplete", "error", err)
		}
		_ = a.exporter.Shutdown(shutCtx)
		return nil
	})

	err := g.Wait()
	logger.Info("bridge stopped")
	return err
}

// close releases components that outlive run: the assessor drains its
// queue, then the bus, the Redis client, and the tracer provider go down.
func (a *app) close() {
	if a.assessor != nil {
		a.assessor.Close()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.tracers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = a.tracers.Shutdown(ctx)
	}
}
