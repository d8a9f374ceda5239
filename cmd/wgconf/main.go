// wgconf manages a directory of WireGuard configuration files: one
// coordinator and any number of peers.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/wgconf/wgconf/internal/config"
	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/keys"
	"github.com/wgconf/wgconf/internal/manage"
	"github.com/wgconf/wgconf/internal/metrics"
	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/repo"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile         string
	logLevel        string
	configDir       string
	noBackup        bool
	metricsTextfile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wgconf",
		Short: "wgconf - manage WireGuard coordinator and peer configuration files",
		Long: `wgconf reads a directory of WireGuard configuration files, lets you edit
the coordinator and its peers, and writes everything back consistently.

QUICK START:

  # Create a coordinator in /etc/wireguard:
  wgconf init --address 10.8.0.1/24

  # Add peers and hand out their files:
  wgconf add-peer --name alice --endpoint vpn.example.com:51820
  wgconf qr 1

  # Review:
  wgconf show
  wgconf check

Every command that changes something keeps the previous files in
<dir>/.conf_bak unless --no-backup is given.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&configDir, "dir", "d", "", "WireGuard configuration directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noBackup, "no-backup", false, "do not keep a backup of the previous files")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file")

	rootCmd.AddCommand(
		newInitCmd(),
		newShowCmd(),
		newAddPeerCmd(),
		newRemovePeerCmd(),
		newGetCmd(),
		newSetCmd(),
		newRekeyCmd(),
		newResizeCmd(),
		newQRCmd(),
		newCheckCmd(),
		newArchiveCmd(),
		newRestoreCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "wgconf %s\n", Version)
				_, _ = fmt.Fprintf(out, "  Commit:     %s\n", Commit)
				_, _ = fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			},
		},
	)
	return rootCmd
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if configDir != "" {
		cfg.ConfigDir = configDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if noBackup {
		cfg.DisableBackup = true
	}
	if metricsTextfile != "" {
		cfg.MetricsTextfile = metricsTextfile
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// session bundles what every command needs.
type session struct {
	cfg     *config.Config
	repo    *repo.Repository
	manager *manage.Manager
	metrics *metrics.RepoMetrics
	diags   *diag.Collector
}

func newSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)

	s := &session{cfg: cfg, diags: &diag.Collector{}}
	opts := []repo.Option{
		repo.WithCoordinatorFile(cfg.CoordinatorFile),
		repo.WithBackupDir(cfg.BackupDir),
		repo.WithStagingDir(cfg.StagingDir),
		repo.WithBackup(!cfg.DisableBackup),
		repo.WithDeriver(keys.WireGuard{}),
		repo.WithSink(diag.Tee(diag.NewLogSink(log.Logger), s.diags)),
		repo.WithLogger(log.Logger),
	}
	if cfg.MetricsTextfile != "" {
		s.metrics = metrics.New(prometheus.NewRegistry())
		opts = append(opts, repo.WithMetrics(s.metrics))
	}
	s.repo = repo.New(cfg.ConfigDir, opts...)
	s.manager = manage.New(keys.WireGuard{}, log.Logger)
	return s, nil
}

// load imports the configuration directory.
func (s *session) load() (*model.Coordinator, error) {
	c, err := s.repo.Import()
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", s.cfg.ConfigDir, err)
	}
	return c, nil
}

// save exports c and flushes metrics.
func (s *session) save(c *model.Coordinator) error {
	if err := s.repo.Export(c); err != nil {
		s.flushMetrics()
		return fmt.Errorf("export %s: %w", s.cfg.ConfigDir, err)
	}
	s.flushMetrics()
	return nil
}

func (s *session) flushMetrics() {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.WriteTextfile(s.cfg.MetricsTextfile); err != nil {
		log.Warn().Err(err).Msg("failed to write metrics")
	}
}

func (s *session) warn(l diag.List) {
	diag.Emit(diag.NewLogSink(log.Logger), l)
}
