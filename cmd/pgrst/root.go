package pgrst

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/edgeflare/dataprovider/pkg/auth"
	"github.com/edgeflare/dataprovider/pkg/config"
	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/provider"
	"github.com/edgeflare/dataprovider/pkg/rest"
	"github.com/edgeflare/dataprovider/pkg/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time with -ldflags "-X github.com/edgeflare/dataprovider/cmd/pgrst.Version=...".
var Version = "dev"

// app carries the state shared by the subcommands once flags are parsed.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	logger   *zap.Logger
	cfgFile  string
	envFile  string
	logLevel string
}

// NewRootCmd builds the pgrst command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:          "pgrst",
		Short:        "pgrst maps admin UI data operations onto a PostgREST API",
		Long:         `pgrst translates list/get/create/update/delete operations into PostgREST requests, prints them, runs them or serves them over HTTP`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
				return nil
			}
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", util.GetEnvOrDefault("PGRST_CONFIG", ""), "config file (default is $HOME/.config/pgrst.yaml)")
	pf.StringVar(&a.envFile, "env-file", util.GetEnvOrDefault("PGRST_ENV_FILE", ".env"), "dotenv file loaded before the config")
	pf.StringVarP(&a.logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	pf.String("provider.apiURL", "", "PostgREST base URL")
	pf.String("provider.schema", "", "schema sent in Accept-Profile/Content-Profile")
	pf.String("provider.defaultListOp", "", "operator for filter keys without @operator")
	cmd.Flags().BoolP("version", "v", false, "Print the version number")

	for _, name := range []string{"provider.apiURL", "provider.schema", "provider.defaultListOp"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	cmd.AddCommand(newURLCmd(a), newCallCmd(a), newServeCmd(a))
	return cmd
}

// Main runs the CLI and exits non-zero on error.
func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) init() error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading %s: %w", a.envFile, err)
	}

	logger, err := newLogger(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logger

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "none") {
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

// newProvider returns a Provider for the loaded config sending through transport.
func (a *app) newProvider(transport provider.Transport) *provider.Provider {
	p := a.cfg.Provider
	return provider.New(p.APIURL, transport,
		provider.WithPrimaryKeys(p.PrimaryKeys),
		provider.WithDefaultListOp(rest.Operator(p.DefaultListOp)),
		provider.WithSchema(p.Schema),
		provider.WithNullsOrder(rest.NullsOrder(p.NullsOrder)),
		provider.WithLogger(a.logger.Named("provider")),
	)
}

func (a *app) newClient() *httputil.Client {
	t := a.cfg.Transport
	return httputil.NewClient(httputil.ClientConfig{
		Logger:         a.logger.Named("http"),
		Timeout:        t.Timeout,
		RetryEnabled:   t.Retry,
		MaxRetries:     t.MaxRetries,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		RateLimit:      t.RateLimit,
	})
}

func (a *app) newAuth(transport provider.Transport) *auth.Provider {
	c := a.cfg.Auth
	return auth.New(a.cfg.Provider.APIURL, transport,
		auth.WithLoginPath(c.LoginPath),
		auth.WithLogoutPath(c.LogoutPath),
		auth.WithRoleClaimKey(c.RoleClaimKey),
		auth.WithLogger(a.logger.Named("auth")),
	)
}

// parseOperation validates the operation argument of a subcommand.
func parseOperation(s string) (provider.Operation, error) {
	op := provider.Operation(s)
	if !op.Valid() {
		names := make([]string, len(provider.Operations))
		for i, o := range provider.Operations {
			names[i] = string(o)
		}
		return "", fmt.Errorf("%w %q, expected one of %s", provider.ErrUnknownOperation, s, strings.Join(names, ", "))
	}
	return op, nil
}
