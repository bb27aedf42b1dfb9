package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/lifxlan/internal/capture"
	"github.com/muurk/lifxlan/internal/protocol"
)

var (
	captureDirection string
	captureType      string
	captureRemote    string
	captureHex       bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Work with frame capture files",
	Long: `Capture files are written with the global --capture flag (or the
capture.path config setting) and hold every frame sent or received.`,
}

var captureShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Decode and print a capture file",
	Example: `  # Record a session, then decode it
  lifx list --capture session.cbor
  lifx capture show session.cbor

  # Only light state replies from hubs
  lifx capture show session.cbor --direction in --type LightState`,
	Args: cobra.ExactArgs(1),
	RunE: runCaptureShow,
}

func init() {
	captureShowCmd.Flags().StringVar(&captureDirection, "direction", "", "Only show frames in this direction (in, out, broadcast)")
	captureShowCmd.Flags().StringVar(&captureType, "type", "", "Only show this packet type (name or code, e.g. LightState or 0x6b)")
	captureShowCmd.Flags().StringVar(&captureRemote, "remote", "", "Only show frames to or from this address (ip:port)")
	captureShowCmd.Flags().BoolVar(&captureHex, "hex", false, "Also print the raw frame")

	captureCmd.AddCommand(captureShowCmd)
	rootCmd.AddCommand(captureCmd)
}

func runCaptureShow(cmd *cobra.Command, args []string) error {
	reg := protocol.DefaultRegistry()

	filter := capture.Filter{Remote: captureRemote}
	if captureDirection != "" {
		d, err := capture.ParseDirection(captureDirection)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if captureType != "" {
		code, err := parseTypeCode(captureType)
		if err != nil {
			return err
		}
		filter.Type = &code
	}

	r, err := capture.NewFilteredReader(args[0], filter)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer r.Close()

	out := cmd.OutOrStdout()
	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", n+1, err)
		}
		n++
		printRecord(out, reg, rec)
	}
	fmt.Fprintf(out, "\n%d record(s)\n", n)
	return nil
}

func printRecord(w io.Writer, reg *protocol.Registry, rec capture.Record) {
	ts := rec.Time.Format("15:04:05.000")
	summary := protocol.TypeName(rec.Type)
	if reg.Known(rec.Type) {
		if pkt, err := reg.Parse(rec.Frame); err != nil {
			summary = fmt.Sprintf("%s (malformed: %v)", summary, err)
		} else {
			summary = pkt.String()
		}
	}
	fmt.Fprintf(w, "%s %-9s %-21s %s\n", ts, rec.Direction, rec.Remote, summary)
	if captureHex {
		fmt.Fprintf(w, "    % x\n", rec.Frame)
	}
}

// parseTypeCode accepts a type name (case-insensitive) or a numeric code.
func parseTypeCode(s string) (uint16, error) {
	if v, err := strconv.ParseUint(s, 0, 16); err == nil {
		return uint16(v), nil
	}
	if code, ok := protocol.TypeByName(s); ok {
		return code, nil
	}
	return 0, fmt.Errorf("unknown packet type %q", s)
}
