package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/muurk/lifxlan/internal/ui"
)

var errNotTerminal = errors.New("watch needs an interactive terminal; use 'lifx list' instead")

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of hubs and devices",
	Long: `Open a full-screen dashboard that follows hub and device events as
they arrive. Select a device with the arrow keys and press t to toggle its
power, or r to ask every hub for fresh device state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ui.IsTerminal() {
			return errNotTerminal
		}
		feed := ui.NewFeed(ui.DefaultFeedSize)
		return runSession(cmd,
			func(s *session) { s.bus.OnAll(feed.Publish) },
			func(ctx context.Context, s *session) error {
				return ui.RunDashboard(ctx, ui.DashboardConfig{
					Feed:       feed,
					Controller: ui.HubController{Hubs: s.hubs},
					Timeout:    cfg.Connection.ResponseTimeout.Std(),
					Nickname:   cfg.Nickname,
				})
			})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
