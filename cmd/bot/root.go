package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newsbot/internal/app"
	"newsbot/internal/config"
	"newsbot/internal/locale"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type rootFlags struct {
	config string
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:           "newsbot",
		Short:         "Telegram bot serving a daily Moroccan news digest",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, f.config)
		},
	}
	root.PersistentFlags().StringVar(&f.config, "config", "", "path to a JSON or YAML config file (optional)")

	root.AddCommand(
		newRunCmd(&f),
		newDigestCmd(&f),
		newStatusCmd(&f),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve Telegram commands and the daily schedule (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, f.config)
		},
	}
}

func newDigestCmd(f *rootFlags) *cobra.Command {
	var send bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Fetch and render one digest; print it, or send it to the recipient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, f.config)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if send {
				return a.Controller().RunScheduled(ctx)
			}
			msg, res := a.Controller().Compose(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			if res.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "fetch %s: %v\n", res.Outcome, res.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "deliver to the scheduled recipient instead of printing")
	return cmd
}

func newStatusCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status USER_ID",
		Short: "Show a user's cooldown state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, f.config)
			if err != nil {
				return err
			}
			defer a.Close()

			e := a.Ledger().IsEligible(cmd.Context(), args[0])
			out := cmd.OutOrStdout()
			if e.Allowed {
				fmt.Fprintf(out, "%s (%s)\n", locale.Allowed, e.Reason)
				return nil
			}
			fmt.Fprintf(out, "%s\nnext: %s\n", e.Wait, e.NextAt.In(a.Scheduler().Location()).Format(locale.StampLayout))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "newsbot %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// openApp builds an App for one-shot commands. Polling is never started.
func openApp(cmd *cobra.Command, cfgPath string) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fail(cmd, fmt.Errorf("config: %w", err))
	}
	a, err := app.New(cfg, app.WithOfflineTransport())
	if err != nil {
		return nil, fail(cmd, err)
	}
	return a, nil
}

func runBot(cmd *cobra.Command, cfgPath string) error {
	// Config errors exit before any goroutine starts.
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fail(cmd, fmt.Errorf("config: %w", err))
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfg)
	if err != nil {
		return fail(cmd, err)
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.Stop(stopCtx)
		stopCancel()
		return fail(cmd, fmt.Errorf("start: %w", err))
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	runErr := a.Err()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fail(cmd, runErr)
	}
	return nil
}

func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "fatal:", err)
	return err
}
