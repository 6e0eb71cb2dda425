// Package version хранит сведения о сборке сервиса.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Значения подставляются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Build: сведения о сборке. Пустые commit и date берутся из VCS-меток
// go build, если ldflags не заданы.
type Build struct {
	Version string
	Commit  string
	Date    string
}

var readBuildInfo = debug.ReadBuildInfo

// Current возвращает сведения о текущей сборке.
func Current() Build {
	b := Build{Version: version, Commit: commit, Date: date}
	if b.Commit == "" || b.Date == "" {
		if info, ok := readBuildInfo(); ok {
			for _, s := range info.Settings {
				switch {
				case s.Key == "vcs.revision" && b.Commit == "":
					b.Commit = s.Value
				case s.Key == "vcs.time" && b.Date == "":
					b.Date = s.Value
				}
			}
		}
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}

// ShortCommit: первые 12 символов хеша.
func (b Build) ShortCommit() string {
	if len(b.Commit) > 12 {
		return b.Commit[:12]
	}
	return b.Commit
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.ShortCommit(), b.Date)
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// ClientID: идентификатор сервиса для Kafka, допустимы только [A-Za-z0-9._-].
func ClientID() string {
	return "carrier-pricelist-" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, version)
}
