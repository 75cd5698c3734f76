package logger

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
)

// modulePath anchors package attribution. Frames outside it resolve to
// the empty package and use the default level.
const modulePath = "github.com/AltairaLabs/CareBridge/"

// callHandler enriches records on their way to the sink: common fields,
// call fields lifted from the context, the owning package's level
// override, and redaction of anything matching a secret or phone
// pattern.
type callHandler struct {
	inner  slog.Handler
	fields []slog.Attr
	levels *pkgLevels
}

var _ slog.Handler = (*callHandler)(nil)

func (h *callHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.levels != nil {
		// The precise per-package gate needs the record PC, which only
		// Handle sees. Admit anything at or above the lowest override.
		return level >= h.levels.floor
	}
	return h.inner.Enabled(ctx, level)
}

func (h *callHandler) Handle(ctx context.Context, r slog.Record) error {
	var pkg string
	if h.levels != nil {
		pkg = packageOf(r.PC)
		if r.Level < h.levels.threshold(pkg) {
			return nil
		}
	}

	out := slog.NewRecord(r.Time, r.Level, Redact(r.Message), r.PC)
	out.AddAttrs(h.fields...)
	if pkg != "" {
		out.AddAttrs(slog.String("logger", pkg))
	}
	for _, key := range ctxKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			out.AddAttrs(slog.String(string(key), v))
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(scrubAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *callHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = scrubAttr(a)
	}
	return &callHandler{inner: h.inner.WithAttrs(scrubbed), fields: h.fields, levels: h.levels}
}

func (h *callHandler) WithGroup(name string) slog.Handler {
	return &callHandler{inner: h.inner.WithGroup(name), fields: h.fields, levels: h.levels}
}

// pkgLevels holds per-package level overrides keyed by the package path
// relative to the module root, dots for slashes.
type pkgLevels struct {
	base      slog.Level
	floor     slog.Level
	overrides map[string]slog.Level
}

func newPkgLevels(base slog.Level, names map[string]string) *pkgLevels {
	p := &pkgLevels{base: base, floor: base, overrides: make(map[string]slog.Level, len(names))}
	for name, levelName := range names {
		l := ParseLevel(levelName)
		p.overrides[name] = l
		if l < p.floor {
			p.floor = l
		}
	}
	return p
}

// threshold returns the level for pkg, trying the exact path first and
// then each parent: "bridge.dispatcher" falls back to "bridge".
func (p *pkgLevels) threshold(pkg string) slog.Level {
	for pkg != "" {
		if l, ok := p.overrides[pkg]; ok {
			return l
		}
		dot := strings.LastIndexByte(pkg, '.')
		if dot < 0 {
			break
		}
		pkg = pkg[:dot]
	}
	return p.base
}

// packageOf resolves a record PC to a module-relative package name,
// "github.com/.../bridge.(*Session).run" becoming "bridge".
func packageOf(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	fn := frame.Function
	i := strings.Index(fn, modulePath)
	if i < 0 {
		return ""
	}
	fn = fn[i+len(modulePath):]
	if j := strings.IndexByte(fn, '('); j >= 0 {
		fn = fn[:j]
	}
	if j := strings.LastIndexByte(fn, '.'); j >= 0 {
		fn = fn[:j]
	}
	return strings.ReplaceAll(fn, "/", ".")
}
