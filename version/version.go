// Package version exposes the bridge's build identity: the version,
// commit, and date stamped in with ldflags, with module build info
// filling whatever the linker left unset.
//
//	go build -ldflags "-X github.com/AltairaLabs/CareBridge/version.version=1.2.0"
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/AltairaLabs/CareBridge/logger"
)

// Stamped by the release build's -ldflags. A plain `go build` leaves
// them empty and resolve fills in what the module build info carries.
var (
	version   = ""
	gitCommit = ""
	buildDate = ""
)

const shortCommit = 7

// Info is the resolved build identity.
type Info struct {
	Version string
	Commit  string
	Dirty   bool
	Date    string
}

var get = sync.OnceValue(func() Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(bi)
})

// Get returns the build identity, resolved once per process.
func Get() Info {
	return get()
}

// resolve merges the linker-stamped values with bi. The VCS settings
// only stand in when no commit was stamped: a stamped build is a
// release, and its checkout state is not interesting.
func resolve(bi *debug.BuildInfo) Info {
	info := Info{Version: version, Commit: gitCommit, Date: buildDate}

	if info.Version == "" {
		info.Version = "dev"
		if bi != nil && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	if info.Commit == "" && bi != nil {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
				if len(info.Commit) > shortCommit {
					info.Commit = info.Commit[:shortCommit]
				}
			case "vcs.modified":
				info.Dirty = s.Value == "true"
			}
		}
	}
	return info
}

// String formats the identity the way the version subcommand prints it:
// "carebridge 1.2.0 (9ae4c21) built 2026-08-01".
func (i Info) String() string {
	var b strings.Builder
	b.WriteString("carebridge " + i.Version)
	if i.Commit != "" {
		fmt.Fprintf(&b, " (%s", i.Commit)
		if i.Dirty {
			b.WriteString("-dirty")
		}
		b.WriteByte(')')
	}
	if i.Date != "" {
		b.WriteString(" built " + i.Date)
	}
	return b.String()
}

// LogAttrs returns the identity as slog attribute pairs, empty fields
// omitted.
func (i Info) LogAttrs() []any {
	attrs := []any{"version", i.Version}
	if i.Commit != "" {
		attrs = append(attrs, "commit", i.Commit)
	}
	if i.Dirty {
		attrs = append(attrs, "dirty", true)
	}
	if i.Date != "" {
		attrs = append(attrs, "built", i.Date)
	}
	return attrs
}

// LogStartup records the build identity at debug level so production
// logs stay quiet. The command calls it once the log level is known.
func LogStartup() {
	logger.Debug("carebridge starting", Get().LogAttrs()...)
}
