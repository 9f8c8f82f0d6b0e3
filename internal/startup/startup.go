package startup

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"gallery/internal/logging"
)

// Set with -ldflags "-X gallery/internal/startup.Version=..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo is reported by /api/version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the build of the running binary.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Setting is one line of a startup report.
type Setting struct {
	Name  string
	Value string
}

const rule = "------------------------------------------------------------"

// Section starts a titled block in the startup log.
func Section(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", strings.ToUpper(title))
	logging.Info(rule)
}

func logSettings(title string, settings []Setting) {
	Section(title)
	width := 0
	for _, s := range settings {
		width = max(width, len(s.Name))
	}
	for _, s := range settings {
		logging.Info("  %-*s  %s", width+1, s.Name+":", s.Value)
	}
}

// Ready logs a component that came up.
func Ready(format string, args ...interface{}) {
	logging.Info("  [OK] "+format, args...)
}

func systemSettings() []Setting {
	return []Setting{
		{"Version", fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildTime)},
		{"Go", runtime.Version()},
		{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
		{"CPUs", fmt.Sprintf("%d (GOMAXPROCS %d)", runtime.NumCPU(), runtime.GOMAXPROCS(0))},
		{"Started", time.Now().Format(time.RFC1123)},
	}
}

// routeList returns "METHOD /path" for every route, sorted by path.
func routeList(router *mux.Router) ([]string, error) {
	type route struct{ method, path string }
	var routes []route
	err := router.Walk(func(r *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := r.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := r.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, route{m, path})
		}
		return nil
	})
	slices.SortStableFunc(routes, func(a, b route) int {
		return strings.Compare(a.path, b.path)
	})

	lines := make([]string, len(routes))
	for i, r := range routes {
		lines[i] = fmt.Sprintf("%-6s %s", r.method, r.path)
	}
	return lines, err
}

// LogRoutes reports the API surface. Individual routes are listed at debug
// level.
func LogRoutes(router *mux.Router, logHealthChecks bool) {
	Section("HTTP server")
	routes, err := routeList(router)
	if err != nil {
		logging.Warn("  Could not walk routes: %v", err)
	}
	logging.Info("  %d routes registered", len(routes))
	for _, r := range routes {
		logging.Debug("    %s", r)
	}
	if logHealthChecks {
		logging.Info("  Health check requests are logged")
	} else {
		logging.Info("  Health check requests are not logged (GALLERY_LOG_HEALTH_CHECKS=true to enable)")
	}
}

// LogListening reports the listening endpoints once startup finished.
func LogListening(cfg *Config, took time.Duration) {
	metricsURL := "disabled"
	if cfg.MetricsEnabled {
		metricsURL = fmt.Sprintf("http://0.0.0.0:%s/metrics", cfg.MetricsPort)
	}
	logSettings("Server started", []Setting{
		{"Sessions API", fmt.Sprintf("http://0.0.0.0:%s/api/sessions", cfg.Port)},
		{"Metrics", metricsURL},
		{"Startup time", took.Round(time.Millisecond).String()},
	})
	logging.Info("")
}

// Shutdown reports the steps of an orderly stop.
type Shutdown struct {
	started time.Time
	failed  int
}

// BeginShutdown logs why the server is stopping.
func BeginShutdown(reason string) *Shutdown {
	Section("Shutdown (" + reason + ")")
	return &Shutdown{started: time.Now()}
}

// Step records a finished step and its error, if any.
func (s *Shutdown) Step(name string, err error) {
	if err != nil {
		s.failed++
		logging.Warn("  [!!] %s: %v", name, err)
		return
	}
	Ready("%s", name)
}

// Failed returns the number of steps that reported an error.
func (s *Shutdown) Failed() int {
	return s.failed
}

// Finish logs the end of the shutdown.
func (s *Shutdown) Finish() {
	took := time.Since(s.started).Round(time.Millisecond)
	if s.failed > 0 {
		logging.Warn("  Shutdown finished in %v with %d failed steps", took, s.failed)
		return
	}
	Ready("Shutdown complete in %v", took)
}
