// Package version holds build metadata injected with -ldflags:
//
//	go build -ldflags "-X github.com/rickgao/fulltick/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/fulltick/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/fulltick/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the JSON shape served on /health.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String renders "<version> (<commit>) built <time>".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// ClientName names gateway and broker connections, e.g. "fulltick/0.3.0".
func ClientName(app string) string {
	return app + "/" + Version
}
