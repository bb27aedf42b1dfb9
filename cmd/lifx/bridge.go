package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/bridge"
	"github.com/muurk/lifxlan/internal/logging"
)

var bridgeListen string

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve events and commands over WebSocket",
	Long: `Run discovery and keep hub connections open while serving a WebSocket
endpoint at /ws. Every hub and device event is sent to connected clients as
JSON, and clients may send commands:

  {"id":"1","op":"power","device":"d0:73:d5:00:00:01","state":"on"}
  {"id":"2","op":"color","device":"d0:73:d5:00:00:01","color":{"hue":0,"saturation":0,"brightness":65535,"kelvin":2700},"fade_ms":500}
  {"id":"3","op":"list"}

A JSON snapshot of every known device is served at /devices.`,
	Example: `  # Listen on the address from the config file (default :8080)
  lifx bridge

  # Listen on localhost only
  lifx bridge --listen 127.0.0.1:9000`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeListen, "listen", "", "Listen address (default from config)")
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	listen := cfg.Bridge.Listen
	if bridgeListen != "" {
		listen = bridgeListen
	}
	log := logging.Named("bridge")

	var srv *bridge.Server
	return runSession(cmd,
		func(s *session) {
			srv = bridge.New(bridge.Config{
				Listen:          listen,
				Hubs:            s.hubs,
				ResponseTimeout: cfg.Connection.ResponseTimeout.Std(),
				Fade:            cfg.Connection.Fade.Std(),
				Logger:          log,
			})
			s.bus.OnAll(srv.Publish)
		},
		func(ctx context.Context, s *session) error {
			errc := make(chan error, 1)
			go func() { errc <- srv.Start() }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				log.Warn("Bridge shutdown failed", zap.Error(err))
			}
			return <-errc
		})
}
