/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	verbose bool
	version bool

	// play and record
	models        []string
	transport     string
	redisAddr     string
	logFullState  bool
	logGripper    string
	logEndpoint   string
	logCompress   bool
	attachTimeout time.Duration
	canvasWidth   int
	canvasHeight  int
	discover      time.Duration
	holdKeys      bool

	// discover
	browseFor time.Duration

	// serve
	bind        string
	port        int
	prefix      string
	dataDir     string
	tasksDir    string
	store       string
	boltPath    string
	databaseURL string
	tlsCert     string
	tlsKey      string
	profile     bool
	announce    bool
}

func (c *Config) validateClient() error {
	if len(c.models) == 0 && c.discover == 0 {
		return errors.New("at least one --model is required unless --discover is set")
	}
	switch c.transport {
	case "ws", "redis":
	default:
		return fmt.Errorf("invalid transport (must be ws or redis): %q", c.transport)
	}
	if c.attachTimeout < 0 {
		return fmt.Errorf("invalid attach timeout: %s", c.attachTimeout)
	}
	return nil
}

func (c *Config) validatePlay() error {
	if err := c.validateClient(); err != nil {
		return err
	}
	if c.canvasWidth < 1 || c.canvasHeight < 1 {
		return fmt.Errorf("invalid canvas size: %dx%d", c.canvasWidth, c.canvasHeight)
	}
	return nil
}

func (c *Config) validateServe() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.store {
	case "file", "bolt":
	case "postgres":
		if c.databaseURL == "" {
			return errors.New("--database-url is required with --store postgres")
		}
	default:
		return fmt.Errorf("invalid store (must be file, bolt or postgres): %q", c.store)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GOLMI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "golmi",
		Short:   "Terminal client, session recorder and log sink for GOLMI gripper worlds.",
		Args:    cobra.NoArgs,
		Version: releaseVersion,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(cfg, cmd.ErrOrStderr()))
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.SetNormalizeFunc(normalize)
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: GOLMI_VERBOSE)")
	cmd.Flags().BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: GOLMI_VERSION)")

	cmd.AddCommand(
		newPlayCmd(cfg, v),
		newRecordCmd(cfg, v),
		newServeCmd(cfg, v),
		newDiscoverCmd(cfg, v),
	)

	bindFlags(v, pfs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("golmi v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newPlayCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Control grippers on one or more model servers from the terminal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validatePlay(); err != nil {
				return err
			}
			return Play(cmd.Context(), cfg)
		},
	}
	clientFlags(cmd.Flags(), cfg)
	fs := cmd.Flags()
	fs.IntVar(&cfg.canvasWidth, "canvas-width", 80, "board width in terminal columns (env: GOLMI_CANVAS_WIDTH)")
	fs.IntVar(&cfg.canvasHeight, "canvas-height", 40, "board height in terminal rows (env: GOLMI_CANVAS_HEIGHT)")
	fs.BoolVar(&cfg.holdKeys, "hold-keys", false, "send stop_move when an arrow key is released (env: GOLMI_HOLD_KEYS)")
	bindFlags(v, fs)
	return cmd
}

func newRecordCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record model server traffic without a display and upload it on exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateClient(); err != nil {
				return err
			}
			return Record(cmd.Context(), cfg)
		},
	}
	clientFlags(cmd.Flags(), cfg)
	bindFlags(v, cmd.Flags())
	return cmd
}

func clientFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.SetNormalizeFunc(normalize)
	fs.StringArrayVarP(&cfg.models, "model", "m", nil, "model server as url[=gripper], repeatable (env: GOLMI_MODEL)")
	fs.StringVar(&cfg.transport, "transport", "ws", "model transport: ws or redis (env: GOLMI_TRANSPORT)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "localhost:6379", "redis address for --transport redis (env: GOLMI_REDIS_ADDR)")
	fs.BoolVar(&cfg.logFullState, "log-full-state", true, "log full snapshots instead of reduced updates (env: GOLMI_LOG_FULL_STATE)")
	fs.StringVar(&cfg.logGripper, "log-gripper", "", "gripper to track in reduced logs (env: GOLMI_LOG_GRIPPER)")
	fs.StringVar(&cfg.logEndpoint, "log-endpoint", "/save_log", "url or path to upload logs to (env: GOLMI_LOG_ENDPOINT)")
	fs.BoolVar(&cfg.logCompress, "log-compress", false, "zstd-compress uploaded logs (env: GOLMI_LOG_COMPRESS)")
	fs.DurationVar(&cfg.attachTimeout, "attach-timeout", 0, "give up on unacknowledged attaches after this long, 0 waits forever (env: GOLMI_ATTACH_TIMEOUT)")
	fs.DurationVar(&cfg.discover, "discover", 0, "browse mDNS for model servers for this long and use them (env: GOLMI_DISCOVER)")
}

func newServeCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept uploaded session logs and serve task files.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateServe(); err != nil {
				return err
			}
			return ServeSink(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalize)
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: GOLMI_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: GOLMI_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: GOLMI_PREFIX)")
	fs.StringVar(&cfg.dataDir, "data-dir", "data_collection", "directory for --store file (env: GOLMI_DATA_DIR)")
	fs.StringVar(&cfg.tasksDir, "tasks-dir", "tasks", "directory of <taskname>.json task files (env: GOLMI_TASKS_DIR)")
	fs.StringVar(&cfg.store, "store", "file", "log store: file, bolt or postgres (env: GOLMI_STORE)")
	fs.StringVar(&cfg.boltPath, "bolt-path", "golmi.db", "database file for --store bolt (env: GOLMI_BOLT_PATH)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "connection string for --store postgres (env: GOLMI_DATABASE_URL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: GOLMI_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: GOLMI_TLS_KEY)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: GOLMI_PROFILE)")
	fs.BoolVar(&cfg.announce, "announce", false, "announce the sink over mDNS (env: GOLMI_ANNOUNCE)")
	bindFlags(v, fs)
	return cmd
}

func newDiscoverCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List model servers and log sinks announced on the local network.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.browseFor <= 0 {
				return fmt.Errorf("invalid browse duration: %s", cfg.browseFor)
			}
			return Discover(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalize)
	fs.DurationVar(&cfg.browseFor, "timeout", 3*time.Second, "how long to browse (env: GOLMI_TIMEOUT)")
	bindFlags(v, fs)
	return cmd
}

func normalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// bindFlags lets GOLMI_<FLAG> supply any flag not given on the command line.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}
