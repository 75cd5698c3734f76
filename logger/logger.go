// Package logger is the structured logging layer for the bridge. It
// wraps log/slog with call-domain helpers, lifts call fields out of
// contexts, supports per-package level overrides, and scrubs API keys
// and caller phone numbers from every record before it is written.
//
// The zero configuration logs text to stderr at info level (or at
// LOG_LEVEL when that is set). The bridge command reconfigures it from
// the manifest's logging section via Configure.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"
)

// LevelTrace sits below debug for frame-rate noise such as per-frame
// gate decisions.
const LevelTrace = slog.LevelDebug - 4

// Output encodings accepted by Options.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	// DefaultLogger is the process-wide logger. SetLevel, SetOutput and
	// Configure rebuild it; SetLogger replaces it outright.
	DefaultLogger *slog.Logger

	output io.Writer = os.Stderr
	custom slog.Handler
)

func init() {
	level := slog.LevelInfo
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = ParseLevel(env)
	}
	DefaultLogger = slog.New(newHandler(Options{}, level))
}

var levelNames = map[string]slog.Level{
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel converts a level name to a slog.Level. Unknown names fall
// back to info.
func ParseLevel(name string) slog.Level {
	if l, ok := levelNames[strings.ToLower(name)]; ok {
		return l
	}
	return slog.LevelInfo
}

// ValidLevel reports whether name is a level ParseLevel understands.
// The config loader uses it to reject typos instead of logging at the
// silent fallback level.
func ValidLevel(name string) bool {
	_, ok := levelNames[strings.ToLower(name)]
	return ok
}

// Options mirrors the manifest's logging section. The bridge command
// maps the config spec onto it, which keeps this package free of
// config imports.
type Options struct {
	// Level names the default level: trace, debug, info, warn, error.
	Level string

	// Format selects the encoding, FormatText (default) or FormatJSON.
	Format string

	// Fields are attached to every record, such as environment or
	// region tags.
	Fields map[string]string

	// Packages overrides the level per package path relative to the
	// module root, dots for slashes, for example "transport" or
	// "metrics.prometheus". An entry covers its subpackages unless a
	// more specific entry exists.
	Packages map[string]string
}

// Configure rebuilds the global logger from opts and installs it as the
// slog default. An empty Level keeps the LOG_LEVEL fallback; a handler
// installed with SetLogger stays in place.
func Configure(opts Options) {
	if custom != nil {
		return
	}
	level := slog.LevelInfo
	switch {
	case opts.Level != "":
		level = ParseLevel(opts.Level)
	case os.Getenv("LOG_LEVEL") != "":
		level = ParseLevel(os.Getenv("LOG_LEVEL"))
	}
	DefaultLogger = slog.New(newHandler(opts, level))
	slog.SetDefault(DefaultLogger)
}

// SetLevel rebuilds the global logger at the given level, dropping any
// Configure settings.
func SetLevel(level slog.Level) {
	DefaultLogger = slog.New(newHandler(Options{}, level))
}

// SetOutput redirects log output. Nil restores stderr. The logger is
// rebuilt at info level; call Configure or SetLevel after it when a
// different level is needed.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	output = w
	SetLevel(slog.LevelInfo)
}

// SetLogger replaces the global logger with one backed by handler and
// pins it against later Configure calls.
func SetLogger(handler slog.Handler) {
	custom = handler
	DefaultLogger = slog.New(handler)
}

func newHandler(opts Options, level slog.Level) *callHandler {
	var levels *pkgLevels
	sinkLevel := level
	if len(opts.Packages) > 0 {
		levels = newPkgLevels(level, opts.Packages)
		sinkLevel = levels.floor
	}

	ho := &slog.HandlerOptions{Level: sinkLevel}
	var sink slog.Handler
	if opts.Format == FormatJSON {
		sink = slog.NewJSONHandler(output, ho)
	} else {
		sink = slog.NewTextHandler(output, ho)
	}

	h := &callHandler{inner: sink, levels: levels}
	for k, v := range opts.Fields {
		h.fields = append(h.fields, slog.String(k, v))
	}
	sort.Slice(h.fields, func(i, j int) bool { return h.fields[i].Key < h.fields[j].Key })
	return h
}

// Leveled helpers on DefaultLogger. They capture the caller's PC
// themselves so per-package levels attribute records to the package
// that logged them, not to this one.

func Info(msg string, args ...any)  { log(context.Background(), slog.LevelInfo, msg, args...) }
func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args...) }
func Warn(msg string, args ...any)  { log(context.Background(), slog.LevelWarn, msg, args...) }
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args...) }

func InfoContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args...)
}

// CallEvent records a call lifecycle transition.
func CallEvent(sessionID, event string, attrs ...any) {
	args := append([]any{"session_id", sessionID, "event", event}, attrs...)
	log(context.Background(), slog.LevelInfo, "📞 call "+event, args...)
}

// ProviderResult records a completed collaborator call and its latency.
// Session and turn tags ride in on ctx.
func ProviderResult(ctx context.Context, provider, kind string, durationMs int64, attrs ...any) {
	args := append([]any{"provider", provider, "kind", kind, "duration_ms", durationMs}, attrs...)
	log(ctx, slog.LevelInfo, "✅ provider call", args...)
}

// ProviderError records a failed collaborator call.
func ProviderError(ctx context.Context, provider, kind string, err error, attrs ...any) {
	args := append([]any{"provider", provider, "kind", kind, "error", err}, attrs...)
	log(ctx, slog.LevelError, "❌ provider call failed", args...)
}

// log emits one record with the PC of the helper's caller. The skip of
// three covers runtime.Callers, log, and the exported helper.
func log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l := DefaultLogger
	if !l.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.Handler().Handle(ctx, r)
}
