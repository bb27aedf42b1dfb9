package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/hub"
	"github.com/muurk/lifxlan/internal/protocol"
	"github.com/muurk/lifxlan/internal/ui"
)

// Command flags
var (
	discoverTimeout time.Duration
	discoverMDNS    bool
	discoverSave    bool
	waitTimeout     time.Duration
	listOutput      string
	fadeFlag        time.Duration
	durationFlag    time.Duration
	nicknameOnly    bool
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&waitTimeout, "wait", 5*time.Second, "How long to wait for hubs and devices to report")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(powerCmd)
	rootCmd.AddCommand(colorCmd)
	rootCmd.AddCommand(dimCmd)
	rootCmd.AddCommand(labelCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// withSession starts a session, runs fn and tears the session down.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	return runSession(cmd, nil, fn)
}

// runSession is withSession with a hook that runs before discovery starts,
// for registering bus listeners that must see every event.
func runSession(cmd *cobra.Command, prepare func(s *session), fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	s := newSession(cfg)
	if prepare != nil {
		prepare(s)
	}
	if err := s.start(ctx); err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

// withBulb resolves ref and runs fn with a response deadline.
func withBulb(cmd *cobra.Command, ref string, fn func(ctx context.Context, b *hub.Bulb) error) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		findCtx, cancel := context.WithTimeout(ctx, waitTimeout)
		b, err := s.bulb(findCtx, ref)
		cancel()
		if err != nil {
			return err
		}

		reqCtx, cancel := context.WithTimeout(ctx, cfg.Connection.ResponseTimeout.Std())
		defer cancel()
		return fn(reqCtx, b)
	})
}

func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func nickname(d events.DeviceState) string {
	return cfg.Nickname(d.Address)
}

func printDevices(w io.Writer, byHub map[string][]events.DeviceState) {
	p := ui.NewPrinter(w)
	hubs := make([]string, 0, len(byHub))
	for h := range byHub {
		hubs = append(hubs, h)
	}
	sort.Strings(hubs)
	for _, h := range hubs {
		p.PrintDevices(h, byHub[h], nickname)
	}
}

// discoverCmd finds hubs and the devices behind them
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover hubs and devices on the network",
	Long: `Broadcast discovery requests for a fixed time and report every hub
that answers, along with the devices each hub reports once connected.

With --mdns, hosts advertising themselves as LIFX products over mDNS are
probed directly. This helps on networks that filter UDP broadcast.`,
	Example: `  # Discover for 5 seconds (default)
  lifx discover

  # Also browse mDNS and remember what was found
  lifx discover --mdns --save`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 5*time.Second, "How long to discover")
	discoverCmd.Flags().BoolVar(&discoverMDNS, "mdns", false, "Also probe hosts found over mDNS")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "Save discovered hubs and devices to the config file")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if discoverMDNS {
		cfg.Discovery.MDNS = true
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Discovering for %s...\n\n", discoverTimeout)

	return withSession(cmd, func(ctx context.Context, s *session) error {
		ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
		defer cancel()
		<-ctx.Done()

		hubs := s.hubs.All()
		if len(hubs) == 0 {
			ui.NewPrinter(out).PrintError("No hubs found", nil, []string{
				"Check that this machine is on the same network as the hub",
				"Try --mdns on networks that filter broadcast",
				"List the hub under 'hubs:' in the config file",
			})
			return nil
		}

		p := ui.NewPrinter(out)
		for _, h := range hubs {
			p.PrintDevices(fmt.Sprintf("%s  site %s  [%s]", h.Addr(), h.Site(), h.State()), h.Devices(), nickname)
		}

		if discoverSave {
			for _, h := range hubs {
				cfg.AddHub(h.Addr(), h.Site().String())
			}
			s.rememberDevices()
			if err := cfg.Save(configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(out, "\nSaved %d hub(s) to config\n", len(hubs))
		}
		return nil
	})
}

// listCmd prints the devices behind every hub
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices",
	Long: `Connect to every hub and list the devices they report. Waits until
no new device has appeared for a second, or until --wait elapses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			ctx, cancel := context.WithTimeout(ctx, waitTimeout)
			defer cancel()
			// Give hubs time to answer before judging quiet.
			s.settle(ctx, time.Second)
			for s.deviceCount() == 0 && ctx.Err() == nil {
				s.settle(ctx, time.Second)
			}

			byHub := s.devices()
			if listOutput == "yaml" {
				return printYAML(cmd.OutOrStdout(), yamlDevices(byHub))
			}
			if len(byHub) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No devices found.")
				return nil
			}
			printDevices(cmd.OutOrStdout(), byHub)
			return nil
		})
	},
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "", "Output format (yaml)")
}

type yamlDevice struct {
	Address  string `yaml:"address"`
	Nickname string `yaml:"nickname,omitempty"`
	Label    string `yaml:"label"`
	On       bool   `yaml:"on"`
	Power    string `yaml:"power"`
	Color    string `yaml:"color"`
	Dim      uint16 `yaml:"dim"`
	Tags     uint64 `yaml:"tags"`
}

func yamlDevices(byHub map[string][]events.DeviceState) map[string][]yamlDevice {
	out := make(map[string][]yamlDevice, len(byHub))
	for h, devs := range byHub {
		for _, d := range devs {
			out[h] = append(out[h], yamlDevice{
				Address:  d.Address.String(),
				Nickname: cfg.Nickname(d.Address),
				Label:    d.Label,
				On:       d.On,
				Power:    d.Power.String(),
				Color:    d.Color.String(),
				Dim:      d.Dim,
				Tags:     d.Tags,
			})
		}
	}
	return out
}

// stateCmd asks one device for its current state
var stateCmd = &cobra.Command{
	Use:   "state <bulb>",
	Short: "Query the current state of a bulb",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBulb(cmd, args[0], func(ctx context.Context, b *hub.Bulb) error {
			st, err := b.Refresh(ctx)
			if err != nil {
				return err
			}
			ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess(st.Label, map[string]string{
				"Address": st.Address.String(),
				"Power":   st.Power.String(),
				"Color":   st.Color.String(),
				"Dim":     strconv.Itoa(int(st.Dim)),
				"Tags":    fmt.Sprintf("%#x", st.Tags),
			})
			return nil
		})
	},
}

var powerCmd = &cobra.Command{
	Use:       "power <bulb> on|off",
	Short:     "Switch a bulb on or off",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := protocol.ParsePowerState(args[1])
		if err != nil {
			return err
		}
		return withBulb(cmd, args[0], func(ctx context.Context, b *hub.Bulb) error {
			if err := b.SetPower(ctx, state); err != nil {
				return err
			}
			ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Power set", map[string]string{
				"Bulb":  b.Address().String(),
				"Power": state.String(),
			})
			return nil
		})
	},
}

var colorCmd = &cobra.Command{
	Use:   "color <bulb> <hue> <saturation> <brightness> <kelvin>",
	Short: "Fade a bulb to a colour",
	Long: `Fade a bulb to a colour. Hue, saturation and brightness are 16-bit
values (0-65535); kelvin is the white point, typically 2500-9000.`,
	Example: `  # Warm white at half brightness over two seconds
  lifx color lamp 0 0 32768 2700 --fade 2s`,
	Args: cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, err := parseColor(args[1:])
		if err != nil {
			return err
		}
		fade := cfg.Connection.Fade.Std()
		if cmd.Flags().Changed("fade") {
			fade = fadeFlag
		}
		return withBulb(cmd, args[0], func(ctx context.Context, b *hub.Bulb) error {
			if err := b.SetColorFade(ctx, color, fade); err != nil {
				return err
			}
			ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Colour set", map[string]string{
				"Bulb":  b.Address().String(),
				"Color": color.String(),
				"Fade":  fade.String(),
			})
			return nil
		})
	},
}

func init() {
	colorCmd.Flags().DurationVar(&fadeFlag, "fade", time.Second, "Transition time (default from config)")
}

var dimCmd = &cobra.Command{
	Use:   "dim <bulb> <value>",
	Short: "Set absolute brightness",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dim, err := parseUint16("dim", args[1])
		if err != nil {
			return err
		}
		return withBulb(cmd, args[0], func(ctx context.Context, b *hub.Bulb) error {
			if err := b.SetDim(ctx, dim, durationFlag); err != nil {
				return err
			}
			ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Brightness set", map[string]string{
				"Bulb":     b.Address().String(),
				"Dim":      strconv.Itoa(int(dim)),
				"Duration": durationFlag.String(),
			})
			return nil
		})
	},
}

func init() {
	dimCmd.Flags().DurationVar(&durationFlag, "duration", 0, "Transition time")
}

var labelCmd = &cobra.Command{
	Use:   "label <bulb> <text>",
	Short: "Rename a bulb",
	Long: `Set the label stored on the bulb. With --nickname the name is only
kept in the local config file and can be used in place of the address.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if nicknameOnly {
			addr, err := cfg.ResolveBulb(args[0])
			if err != nil {
				return err
			}
			cfg.SetBulbNickname(addr, args[1])
			if err := cfg.Save(configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now known as %q\n", addr, args[1])
			return nil
		}
		return withBulb(cmd, args[0], func(ctx context.Context, b *hub.Bulb) error {
			if err := b.SetLabel(ctx, args[1]); err != nil {
				return err
			}
			ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Label set", map[string]string{
				"Bulb":  b.Address().String(),
				"Label": args[1],
			})
			return nil
		})
	},
}

func init() {
	labelCmd.Flags().BoolVar(&nicknameOnly, "nickname", false, "Store a local nickname instead of renaming the bulb")
}

func parseUint16(name, s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be 0-65535", name, s)
	}
	return uint16(v), nil
}

func parseColor(args []string) (protocol.Color, error) {
	names := []string{"hue", "saturation", "brightness", "kelvin"}
	if len(args) != len(names) {
		return protocol.Color{}, fmt.Errorf("expected %d colour values, got %d", len(names), len(args))
	}
	var v [4]uint16
	for i, s := range args {
		n, err := parseUint16(names[i], s)
		if err != nil {
			return protocol.Color{}, err
		}
		v[i] = n
	}
	return protocol.Color{Hue: v[0], Saturation: v[1], Brightness: v[2], Kelvin: v[3]}, nil
}
