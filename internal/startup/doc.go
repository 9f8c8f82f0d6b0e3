// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// This package centralizes all application configuration and provides consistent
// logging throughout the application lifecycle.
//
// # Configuration
//
// Configuration is layered. [DefaultConfig] supplies defaults, an optional
// TOML file overrides them, and GALLERY_* environment variables override the
// file. Command line flags are applied last by the caller before [Config.Prepare]
// resolves paths and logs the result.
//
// The following keys are supported (TOML key / environment variable):
//
//   - media_dir / GALLERY_MEDIA_DIR: Path to media directory (default: /media)
//   - database_dir / GALLERY_DATABASE_DIR: Path to database directory (default: /database)
//   - port / GALLERY_PORT: HTTP server port (default: 8080)
//   - metrics_port / GALLERY_METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - metrics_enabled / GALLERY_METRICS_ENABLED: Enable the metrics server (default: true)
//   - index_interval / GALLERY_INDEX_INTERVAL: Full re-index interval as Go duration (default: 30m)
//   - window_size / GALLERY_WINDOW_SIZE: Entries loaded synchronously around a start index (default: 50)
//   - shuffle_seed / GALLERY_SHUFFLE_SEED: Fixed shuffle seed, 0 for time based (default: 0)
//   - watch / GALLERY_WATCH: Apply filesystem changes as they happen (default: true)
//   - session_idle / GALLERY_SESSION_IDLE: Idle time before a viewer session is closed (default: 30m)
//   - log_health_checks / GALLERY_LOG_HEALTH_CHECKS: Log health check requests (default: false)
//
// LOG_LEVEL and DEBUG are read by the logging package.
//
// # Directory Setup
//
// The database directory is created if needed and must be writable. The
// media directory is checked but not created (it should be mounted).
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
package startup
