// Command sysbridged runs the telemetry fan-out engine: it loads
// config.json, wires every collaborator, and serves the HTTP/WS/SSE
// surface until interrupted. A cobra root command carries a serve
// subcommand whose flags set the config path, probe roots, /metrics
// exposure and log level; the listen address comes from the config file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hostbridge/sysbridge/internal/app"
	"github.com/hostbridge/sysbridge/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

func main() {
	version.Set(version.Info{Version: buildVersion, Commit: buildCommit, BuildTime: buildTime})

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sysbridged",
		Short:         "subscription-driven system telemetry bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath       string
		sysfsRoot        string
		debugfsRoot      string
		enablePrometheus bool
		logLevel         string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "bind the listener and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(logLevel)}))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return app.Run(ctx, logger, app.Options{
				ConfigPath:       configPath,
				SysfsRoot:        sysfsRoot,
				DebugfsRoot:      debugfsRoot,
				EnablePrometheus: enablePrometheus,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "config.json", "path to the configuration document")
	flags.StringVar(&sysfsRoot, "sysfs-root", "/sys", "root of the sysfs tree consulted by the GPU probe")
	flags.StringVar(&debugfsRoot, "debugfs-root", "/sys/kernel/debug", "root of the debugfs tree (accepted, but no probe reads it)")
	flags.BoolVar(&enablePrometheus, "prometheus", true, "expose /metrics")
	flags.StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")

	return cmd
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
