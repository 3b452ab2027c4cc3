package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/casys-ai/mcpserver/internal/config"
	"github.com/casys-ai/mcpserver/internal/observability"
	"github.com/casys-ai/mcpserver/internal/registry"
	"github.com/casys-ai/mcpserver/internal/transport/httpmcp"
)

const appVersion = version

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	s := newStyles(os.Stdout, globalFlags.JSON)

	cfg, err := config.Load(config.Options{ConfigPath: globalFlags.ConfigPath})
	if err != nil {
		exitWith(ExitConfigInvalid, s.errPrefix()+" "+err.Error())
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(logLevel(cfg.Logging.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authProv, err := buildAuthProvider(ctx, cfg.Auth, log)
	if err != nil {
		exitWith(ExitConfigInvalid, s.errPrefix()+" building auth provider: "+err.Error())
	}

	reg := registry.New(registry.WithLogger(log))
	reg.Start()

	metrics := observability.NewMetrics()

	srv := httpmcp.New(*cfg, reg, authProv, metrics, tracer, log, httpmcp.ServerInfo{
		Name:    "mcpserver",
		Version: appVersion,
	}, nil)

	if !globalFlags.Quiet && !globalFlags.JSON {
		fmt.Println(s.banner(), appVersion)
		fmt.Println(s.kv("Listen", cfg.Server.Listen))
		fmt.Println(s.kv("MCP path", cfg.Server.MCPPath))
		fmt.Println(s.kv("Auth", cfg.Auth.Provider))
		fmt.Println(s.kv("Queue strategy", cfg.Queue.Strategy))
		fmt.Println()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			exitWith(ExitGenericError, s.errPrefix()+" server exited: "+err.Error())
		}
		return nil
	case <-sigCh:
		if !globalFlags.Quiet {
			fmt.Println(s.dim("shutting down..."))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		exitWith(ExitGenericError, s.errPrefix()+" shutdown: "+err.Error())
	}
	return nil
}

func logLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
