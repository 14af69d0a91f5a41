package version

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Overridable at build time with -ldflags "-X ...=..."; otherwise resolved
// from the binary's embedded build info.
var (
	Version   = ""
	GitCommit = ""
)

func resolve() {
	info, ok := debug.ReadBuildInfo()

	if Version == "" {
		Version = "dev"
		if ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}

	if GitCommit == "" {
		GitCommit = "unknown"
		if ok {
			revision := ""
			dirty := false
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					revision = setting.Value
				case "vcs.modified":
					dirty = setting.Value == "true"
				}
			}
			if revision != "" {
				GitCommit = revision
				if dirty {
					GitCommit += "-dirty"
				}
			}
		}
	}
}

func Print(usingLogger bool) {
	resolve()

	banner := fmt.Sprintf("claims-pipeline %s (%s)", Version, GitCommit)
	if usingLogger {
		logrus.Info(banner)
	} else {
		fmt.Println(banner)
	}
}
