package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gallery/internal/logging"
	"gallery/internal/startup"
)

// globalFlags are shared by every subcommand and override the config file.
type globalFlags struct {
	configFile  string
	debug       bool
	mediaDir    string
	databaseDir string
	windowSize  int
	seed        uint64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&globalFlags{}).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(flags *globalFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gallery",
		Short: "Incremental media list engine",
		Long: `gallery indexes a media directory into SQLite and serves ordered,
incrementally loaded media lists over HTTP.

Configuration is read from a TOML file, then GALLERY_* environment
variables, then command line flags.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if flags.debug {
				logging.SetLevel(logging.LevelDebug)
			}
		},
	}
	rootCmd.Version = startup.Version

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Config file (default ./gallery.toml or ~/.config/gallery/config.toml)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.mediaDir, "media-dir", "", "Media library root")
	pf.StringVar(&flags.databaseDir, "database-dir", "", "Directory holding gallery.db")
	pf.IntVar(&flags.windowSize, "window-size", 0, "Entries loaded synchronously around the start index")
	pf.Uint64Var(&flags.seed, "seed", 0, "Shuffle seed (0 picks one per list)")

	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newListCmd(flags))
	rootCmd.AddCommand(newIndexCmd(flags))

	return rootCmd
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*startup.Config, error) {
	path := flags.configFile
	if path == "" {
		path = startup.GetConfigPath()
	}

	cfg, err := startup.Load(path)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("media-dir") {
		cfg.MediaDir = flags.mediaDir
	}
	if changed("database-dir") {
		cfg.DatabaseDir = flags.databaseDir
	}
	if changed("window-size") {
		cfg.WindowSize = flags.windowSize
	}
	if changed("seed") {
		cfg.ShuffleSeed = flags.seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
