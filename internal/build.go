package internal

import (
	"runtime/debug"
)

// BuildRevision is the VCS revision the binary was built from, "unknown"
// when built without VCS information.
var BuildRevision = "unknown"

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			BuildRevision = setting.Value
		}
	}
}
