package pgrest

import (
	"fmt"
	"os"

	"github.com/edgeflare/pgrest/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	cfgFile  string
	logLevel string
	v        *viper.Viper
	cfg      *config.Config
	logger   *zap.Logger
}

// NewRootCmd returns the pgrest command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "pgrest",
		Short: "pgrest is a PostgREST client toolkit",
		Long: `pgrest compiles PostgREST select expressions, queries PostgREST servers
and serves an in-memory PostgREST backend for tests`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintln(cmd.OutOrStdout(), config.Version)
				return nil
			}
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.config/pgrest.yaml)")
	pf.StringVarP(&a.logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	cmd.Flags().BoolP("version", "v", false, "Print the version number")

	cmd.AddCommand(a.selectCmd(), a.queryCmd(), a.mockCmd())
	return cmd
}

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWith(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	if f := a.v.ConfigFileUsed(); f != "" {
		logger.Debug("using config file", zap.String("path", f))
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// bind ties a flag to a config key so that an explicitly set flag wins over
// the file and environment.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}
