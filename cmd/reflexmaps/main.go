package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/reflexmaps/internal/catalog"
	"github.com/openmined/reflexmaps/internal/client"
	"github.com/openmined/reflexmaps/internal/client/config"
	"github.com/openmined/reflexmaps/internal/state"
	"github.com/openmined/reflexmaps/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "REFLEXMAPS"

var red = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

const usageText = `Usage:
- To get _ALL_ maps run the following command
    reflexmaps all
- To get starred map / starred user's maps run the following command
    reflexmaps <id>
`

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("reflexmaps: "+err.Error()))
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:           "reflexmaps <all|id>",
		Short:         "Download new and updated Reflex maps",
		Version:       version.Detailed(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				_, err := io.WriteString(cmd.OutOrStdout(), usageText)
				return err
			}

			cfg := loadConfig(v, defaults)
			if err := cfg.Validate(); err != nil {
				return err
			}

			closer, err := setupLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			return run(cmd.Context(), cfg, catalog.ParseQuery(args[0]), cmd.OutOrStdout())
		},
	}

	cmd.SetUsageTemplate(usageText)
	cmd.Flags().SortFlags = false
	cmd.Flags().String("state", defaults.StatePath, "sync state file")
	cmd.Flags().String("source", "", "catalog url, overrides the one stored in the state file")
	cmd.Flags().String("map-path", "", "map directory, overrides the one stored in the state file")
	cmd.Flags().Bool("dry-run", false, "show what would be downloaded without downloading or saving")
	cmd.Flags().Duration("timeout", defaults.Timeout, "abort the whole run after this long (0 disables)")
	cmd.Flags().String("log-level", defaults.LogLevel, "log level: debug / info / warn / error")
	cmd.Flags().String("log-file", "", "also write logs to this file (rotated)")

	v.BindPFlags(cmd.Flags())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func loadConfig(v *viper.Viper, defaults *config.Config) *config.Config {
	cfg := *defaults
	if p := v.GetString("state"); p != "" {
		cfg.StatePath = p
	}
	cfg.SourceURL = v.GetString("source")
	cfg.MapPath = v.GetString("map-path")
	cfg.DryRun = v.GetBool("dry-run")
	cfg.Timeout = v.GetDuration("timeout")
	cfg.LogLevel = v.GetString("log-level")
	cfg.LogFile = v.GetString("log-file")
	return &cfg
}

func run(ctx context.Context, cfg *config.Config, q catalog.Query, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	lock, err := state.Lock(cfg.StatePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("failed to release lock", "path", lock.Path(), "error", err)
		}
	}()

	c, err := client.New(cfg, client.WithOutput(out))
	if err != nil {
		return err
	}

	start := time.Now()
	report, err := c.Sync(ctx, q)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("sync aborted, state not saved", "query", q.String(), "error", err)
		}
		return err
	}

	slog.Debug("sync finished", "query", q.String(), "downloaded", report.Downloaded, "took", time.Since(start))
	return nil
}
