package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arledge/webrd/internal/config"
	"github.com/arledge/webrd/internal/logging"
	"github.com/arledge/webrd/internal/server"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "webrd",
	Short: "Web remote desktop server",
	Long: `webrd serves the host display to browser clients: it captures the
screen, streams JPEG frames over a WebSocket, and applies mouse and
keyboard input from clients that logged in with the control password.
Clients with the view password watch without controlling.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("webrd v%s\n", version)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default webrd.yaml in . or /etc/webrd)")
	flags.Int("port", 7417, "TCP port to listen on")
	flags.String("password", "", "control password (required)")
	flags.String("view_password", "", "optional view-only password")
	flags.Bool("fullscreen", false, "capture all displays instead of the primary one")
	flags.Int("max_fps", 30, "frame rate cap per session")
	flags.Int("max_ips", 60, "input events per second cap per session")
	flags.Int("min_quality", 20, "lower JPEG quality bound")
	flags.Int("max_quality", 90, "upper JPEG quality bound")
	flags.String("log_level", "info", "log level (debug, info, warn, error)")
	flags.String("log_format", "text", "log format (text or json)")
	flags.String("log_file", "", "log file path (default stdout only)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return err
	}

	initLogging(cfg)

	srv, err := server.New(cfg)
	if err != nil {
		log.Error("startup failed", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("server failed", "error", err)
		return err
	}
	return nil
}

// initLogging sets up structured logging from config. Call after config.Load().
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	// Re-bind package-level logger after Init
	log = logging.L("main")
}
