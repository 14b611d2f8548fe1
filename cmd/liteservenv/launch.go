package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/liteservenv"
	"github.com/giantswarm/liteservenv/internal/netutil"
)

// launchConfig holds the resolved settings of the launch command.
type launchConfig struct {
	Path        string
	Port        int
	Dir         string
	LogDir      string
	Env         []string
	Timeout     time.Duration
	StopTimeout time.Duration
	Probe       bool
	AdminAddr   string
}

func (c launchConfig) validate() error {
	var errs []error
	if c.Path == "" {
		errs = append(errs, errors.New("--path must not be empty"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("--port must be between 0 and 65535, got %d", c.Port))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("--timeout must be greater than 0, got %v", c.Timeout))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--stop-timeout must be greater than 0, got %v", c.StopTimeout))
	}
	return errors.Join(errs...)
}

func (c *cli) newLaunchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start LiteServ and keep it running until interrupted",
		Long: `Start LiteServ, wait until it reports that it is listening and print
its base URL. LiteServ is stopped on SIGINT or SIGTERM.

With --port 0 a free port is picked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := launchConfig{
				Path:        c.v.GetString("path"),
				Port:        c.v.GetInt("port"),
				Dir:         c.v.GetString("dir"),
				LogDir:      c.v.GetString("log-dir"),
				Env:         c.v.GetStringSlice("env"),
				Timeout:     c.v.GetDuration("timeout"),
				StopTimeout: c.v.GetDuration("stop-timeout"),
				Probe:       c.v.GetBool("probe"),
				AdminAddr:   c.v.GetString("admin-addr"),
			}
			return runLaunch(cmd.Context(), cfg, c.out, c.errOut, c.log)
		},
	}

	f := cmd.Flags()
	f.String("path", liteservenv.DefaultLiteServBinary, "LiteServ executable")
	f.Int("port", 0, "port to listen on; 0 picks a free one")
	f.String("dir", "", "database directory passed as --dir")
	f.String("log-dir", "", "directory for LiteServ stdout and stderr log files")
	f.StringSlice("env", nil, "extra KEY=VALUE environment entries for LiteServ")
	f.Duration("timeout", 30*time.Second, "how long to wait for LiteServ to become ready")
	f.Duration("stop-timeout", liteservenv.DefaultInstanceStopTimeout, "grace period between SIGTERM and SIGKILL")
	f.Bool("probe", false, "also wait for GET / to succeed")
	f.String("admin-addr", "", "address for the /metrics and /readyz endpoints; empty disables them")
	return cmd
}

// runLaunch starts LiteServ per cfg, writes its URL to out once ready and
// blocks until ctx is done or LiteServ exits. LiteServ's stderr is copied to
// childErr.
func runLaunch(ctx context.Context, cfg launchConfig, out, childErr io.Writer, log *slog.Logger) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	if cfg.Port == 0 {
		ports := netutil.NewPortRegistry(log)
		port, err := ports.AllocatePort()
		if err != nil {
			return fmt.Errorf("pick port: %w", err)
		}
		defer ports.Release(port)
		cfg.Port = port
	}

	var ready atomic.Bool
	g, gctx := errgroup.WithContext(ctx)

	if cfg.AdminAddr != "" {
		ln, err := net.Listen("tcp", cfg.AdminAddr)
		if err != nil {
			return fmt.Errorf("admin listen: %w", err)
		}
		g.Go(func() error {
			return serveAdmin(gctx, ln, newAdminRouter(ready.Load), log)
		})
	}

	g.Go(func() error {
		// The child outlives gctx so it can be stopped with SIGTERM
		// instead of being killed by the context.
		h, err := liteservenv.Launch(context.WithoutCancel(gctx), liteservenv.LaunchRequest{
			Path:        cfg.Path,
			Port:        cfg.Port,
			Dir:         cfg.Dir,
			LogDir:      cfg.LogDir,
			Env:         cfg.Env,
			Stderr:      childErr,
			StopTimeout: cfg.StopTimeout,
			Logger:      log,
		})
		if err != nil {
			return err
		}
		defer h.Close()

		if err := waitReady(gctx, h, cfg); err != nil {
			return err
		}
		ready.Store(true)
		log.Info("liteserv ready", "url", h.URL(), "pid", h.PID())
		if _, err := fmt.Fprintln(out, h.URL()); err != nil {
			return fmt.Errorf("write url: %w", err)
		}

		select {
		case <-h.Exited():
			ready.Store(false)
			return fmt.Errorf("%w: %w", liteservenv.ErrProcessExited, h.ExitErr())
		case <-gctx.Done():
		}
		ready.Store(false)
		return h.Stop(cfg.StopTimeout)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func waitReady(ctx context.Context, h *liteservenv.Handle, cfg launchConfig) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := h.WaitReady(ctx); err != nil {
		return err
	}
	if cfg.Probe {
		return h.Probe(ctx)
	}
	return nil
}
