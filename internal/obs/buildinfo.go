package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildInfo identifies the running binary and the store it serves from.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Store     string `json:"store"`
}

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Lighting map build and store backend.",
		},
		[]string{"version", "commit", "go_version", "store"},
	)
)

// InitBuildInfo publishes build_info for the binary. A blank or "dev" commit
// is replaced by the VCS revision stamped at build time, when there is one.
// Only the latest call is exported.
func InitBuildInfo(version, commit, store string) BuildInfo {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	info := BuildInfo{Version: version, Commit: commit, GoVersion: runtime.Version(), Store: store}
	if info.Commit == "" || info.Commit == "dev" {
		if rev := vcsRevision(); rev != "" {
			info.Commit = rev
		}
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion, info.Store).Set(1)
	return info
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
