package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/hub"
	"github.com/muurk/lifxlan/internal/protocol"
	"github.com/muurk/lifxlan/internal/ui"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell",
	Long: `Start an interactive shell that keeps hub connections open between
commands. Type 'help' at the prompt for the command list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sh *shell
		return runSession(cmd,
			func(s *session) {
				sh = &shell{s: s}
				s.bus.OnAll(sh.handleEvent)
			},
			func(ctx context.Context, s *session) error {
				rl, err := readline.NewEx(&readline.Config{
					Prompt:          "lifx> ",
					InterruptPrompt: "^C",
					EOFPrompt:       "exit",
					AutoComplete:    shellCompleter(),
				})
				if err != nil {
					return fmt.Errorf("failed to create readline: %w", err)
				}
				sh.rl = rl
				return sh.run(ctx)
			})
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func shellCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("hubs"),
		readline.PcItem("list"),
		readline.PcItem("state"),
		readline.PcItem("power"),
		readline.PcItem("color"),
		readline.PcItem("dim"),
		readline.PcItem("label"),
		readline.PcItem("nick"),
		readline.PcItem("refresh"),
		readline.PcItem("events", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("quit"),
	)
}

// shell is the interactive command loop.
type shell struct {
	s  *session
	rl *readline.Instance

	// showEvents prints device events as they arrive.
	showEvents atomic.Bool
}

func (sh *shell) out() io.Writer { return sh.rl.Stdout() }

func (sh *shell) handleEvent(e events.Event) {
	if !sh.showEvents.Load() || sh.rl == nil {
		return
	}
	switch ev := e.(type) {
	case events.HubConnected:
		fmt.Fprintf(sh.out(), "[hub] %s connected\n", ev.Hub)
	case events.HubDisconnected:
		if ev.Err != nil {
			fmt.Fprintf(sh.out(), "[hub] %s disconnected: %v\n", ev.Hub, ev.Err)
		} else {
			fmt.Fprintf(sh.out(), "[hub] %s disconnected\n", ev.Hub)
		}
	case events.DeviceDiscovered:
		fmt.Fprintf(sh.out(), "[new] %s\n", ui.FormatDevice(ev.Device, cfg.Nickname(ev.Device.Address)))
	case events.DeviceUpdated:
		fmt.Fprintf(sh.out(), "[upd] %s\n", ui.FormatDevice(ev.Device, cfg.Nickname(ev.Device.Address)))
	}
}

func (sh *shell) run(ctx context.Context) error {
	defer sh.rl.Close()

	sh.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := sh.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		name := strings.ToLower(parts[0])
		args := parts[1:]

		switch name {
		case "help", "?":
			sh.printHelp()
		case "hubs":
			sh.cmdHubs()
		case "list", "ls":
			sh.cmdList()
		case "state", "s":
			sh.withBulb(ctx, args, 1, "state <bulb>", sh.cmdState)
		case "power", "p":
			sh.withBulb(ctx, args, 2, "power <bulb> on|off", sh.cmdPower)
		case "color", "c":
			sh.withBulb(ctx, args, 5, "color <bulb> <h> <s> <b> <k> [fade]", sh.cmdColor)
		case "dim", "d":
			sh.withBulb(ctx, args, 2, "dim <bulb> <value> [duration]", sh.cmdDim)
		case "label":
			sh.withBulb(ctx, args, 2, "label <bulb> <text>", sh.cmdLabel)
		case "nick":
			sh.cmdNick(args)
		case "refresh", "r":
			sh.cmdRefresh()
		case "events":
			sh.cmdEvents(args)
		case "quit", "exit", "q":
			return nil
		default:
			fmt.Fprintf(sh.out(), "Unknown command: %s (type 'help' for commands)\n", name)
		}
	}
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out(), `
Commands:
  Inspection:
    hubs                          - List hubs and their connection state
    list                          - List devices reported so far
    state <bulb>                  - Query a bulb for its current state
    refresh                       - Ask every hub for fresh device state
    events on|off                 - Print device events as they arrive

  Control:
    power <bulb> on|off           - Switch a bulb
    color <bulb> <h> <s> <b> <k> [fade]
                                  - Fade to a colour (fade e.g. 500ms)
    dim <bulb> <value> [duration] - Set absolute brightness
    label <bulb> <text>           - Rename a bulb
    nick <bulb> <name>            - Set a local nickname (saved to config)

    quit                          - Exit

A bulb is an address (d0:73:d5:00:00:01) or a nickname.`)
}

// withBulb checks argument count, resolves args[0] and runs fn with a
// response deadline. Errors are printed, not returned.
func (sh *shell) withBulb(ctx context.Context, args []string, nargs int, usage string,
	fn func(ctx context.Context, b *hub.Bulb, args []string) error) {
	if len(args) < nargs {
		fmt.Fprintf(sh.out(), "Usage: %s\n", usage)
		return
	}

	findCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	b, err := sh.s.bulb(findCtx, args[0])
	cancel()
	if err != nil {
		fmt.Fprintf(sh.out(), "Error: %v\n", err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Connection.ResponseTimeout.Std())
	defer cancel()
	if err := fn(reqCtx, b, args[1:]); err != nil {
		fmt.Fprintf(sh.out(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out(), "OK")
}

func (sh *shell) cmdHubs() {
	hubs := sh.s.hubs.All()
	if len(hubs) == 0 {
		fmt.Fprintln(sh.out(), "No hubs yet.")
		return
	}
	for _, h := range hubs {
		fmt.Fprintf(sh.out(), "  %-21s site %s  %-12s %d device(s), %d pending\n",
			h.Addr(), h.Site(), h.State(), len(h.Devices()), h.Outstanding())
	}
}

func (sh *shell) cmdList() {
	byHub := sh.s.devices()
	if len(byHub) == 0 {
		fmt.Fprintln(sh.out(), "No devices yet.")
		return
	}
	printDevices(sh.out(), byHub)
}

func (sh *shell) cmdState(ctx context.Context, b *hub.Bulb, _ []string) error {
	st, err := b.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out(), "  "+ui.FormatDevice(st, cfg.Nickname(st.Address)))
	return nil
}

func (sh *shell) cmdPower(ctx context.Context, b *hub.Bulb, args []string) error {
	state, err := protocol.ParsePowerState(args[0])
	if err != nil {
		return err
	}
	return b.SetPower(ctx, state)
}

func (sh *shell) cmdColor(ctx context.Context, b *hub.Bulb, args []string) error {
	color, err := parseColor(args[:4])
	if err != nil {
		return err
	}
	fade := cfg.Connection.Fade.Std()
	if len(args) > 4 {
		if fade, err = time.ParseDuration(args[4]); err != nil {
			return fmt.Errorf("invalid fade: %w", err)
		}
	}
	return b.SetColorFade(ctx, color, fade)
}

func (sh *shell) cmdDim(ctx context.Context, b *hub.Bulb, args []string) error {
	dim, err := parseUint16("dim", args[0])
	if err != nil {
		return err
	}
	var d time.Duration
	if len(args) > 1 {
		if d, err = time.ParseDuration(args[1]); err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
	}
	return b.SetDim(ctx, dim, d)
}

func (sh *shell) cmdLabel(ctx context.Context, b *hub.Bulb, args []string) error {
	return b.SetLabel(ctx, strings.Join(args, " "))
}

func (sh *shell) cmdNick(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(sh.out(), "Usage: nick <bulb> <name>")
		return
	}
	addr, err := cfg.ResolveBulb(args[0])
	if err != nil {
		fmt.Fprintf(sh.out(), "Error: %v\n", err)
		return
	}
	name := strings.Join(args[1:], " ")
	cfg.SetBulbNickname(addr, name)
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(sh.out(), "Error: failed to save config: %v\n", err)
		return
	}
	fmt.Fprintf(sh.out(), "%s is now known as %q\n", addr, name)
}

func (sh *shell) cmdRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Connection.ResponseTimeout.Std())
	defer cancel()
	if err := (ui.HubController{Hubs: sh.s.hubs}).Refresh(ctx); err != nil {
		fmt.Fprintf(sh.out(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out(), "Refresh requested")
}

func (sh *shell) cmdEvents(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out(), "Usage: events on|off")
		return
	}
	on, err := protocol.ParsePowerState(args[0])
	if err != nil {
		fmt.Fprintln(sh.out(), "Usage: events on|off")
		return
	}
	sh.showEvents.Store(on.On())
}
