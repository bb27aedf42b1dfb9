// Package ui provides terminal output for the lifx CLI.
//
// Two styles of output are offered. Printer renders one-shot results
// (headers, success and error boxes, device lists) with Lipgloss and
// returns. Dashboard is a Bubble Tea model for the watch command: a live
// table of devices fed by hub events.
//
// # Feeding the dashboard
//
// The event bus delivers synchronously on hub receive loops, so the
// dashboard never subscribes directly. A Feed sits in between: it is
// registered on the bus, buffers events, and drops them when the program
// falls behind.
//
//	feed := ui.NewFeed(0)
//	bus.OnAll(feed.Publish)
//	err := ui.RunDashboard(ctx, ui.DashboardConfig{
//		Feed:       feed,
//		Controller: ui.HubController{Hubs: hubs},
//	})
//
// # Terminal width
//
// Content is capped at MaxContentWidth. GetTerminalWidth falls back to
// 80 columns when stdout is not a terminal.
package ui
