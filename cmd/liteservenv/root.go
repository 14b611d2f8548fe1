package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/giantswarm/liteservenv"
)

// envPrefix prefixes every environment variable the CLI reads, for example
// LITESERVENV_ADMIN_ADDR for --admin-addr.
const envPrefix = "liteservenv"

// cli carries the state shared by all commands.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
	log    *slog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "liteservenv",
		Short: "Launch LiteServ test servers",
		Long: `liteservenv starts the LiteServ REST server, waits for it to report
that it is listening and keeps it running until interrupted.

Every flag can also be set through the environment as LITESERVENV_<FLAG>,
with dashes replaced by underscores (e.g. LITESERVENV_ADMIN_ADDR). Values
from .env and .env.local in the working directory are loaded first.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(c.newLaunchCmd(), newVersionCmd(out))
	return root
}

// init loads the env files, binds the command's flags and sets up logging.
func (c *cli) init(cmd *cobra.Command) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.v.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	c.log = slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: level}))
	liteservenv.SetLogger(c.log.With("component", "liteservenv"))
	return nil
}
