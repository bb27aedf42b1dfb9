package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/lifxlan/internal/events"
)

// Printer provides methods for printing UI components to a writer.
// Commands that run once and exit use it instead of a Bubble Tea program.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// SetWidth overrides the detected terminal width.
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(RenderErrorBox(title, err, troubleshooting, p.width))
}

// PrintDevices prints one line per device. names maps addresses to
// nicknames and may be nil.
func (p *Printer) PrintDevices(hub string, devices []events.DeviceState, names func(events.DeviceState) string) {
	p.Println(HeaderTitleStyle.Render(hub))
	if len(devices) == 0 {
		p.Println(StatusStyle.Render("no devices"))
		return
	}
	for _, d := range devices {
		nick := ""
		if names != nil {
			nick = names(d)
		}
		p.Println("  " + FormatDevice(d, nick))
	}
}

// FormatDevice renders a single device line.
func FormatDevice(d events.DeviceState, nickname string) string {
	marker := PowerOffStyle.Render(OffMarker)
	if d.On {
		marker = PowerOnStyle.Render(OnMarker)
	}
	name := d.Label
	if nickname != "" {
		name = fmt.Sprintf("%s (%s)", nickname, d.Label)
	}
	return fmt.Sprintf("%s %s  %-28s %s", marker, d.Address, name, d.Color)
}

// sortedKeys keeps detail boxes stable between runs.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RenderHeader renders a command header box
func RenderHeader(title, command string, params map[string]string, width int) string {
	titleLine := HeaderTitleStyle.Render(strings.ToUpper(title))
	commandLine := HeaderCommandStyle.Render(command)
	topSection := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	if len(params) == 0 {
		return HeaderBorderStyle(width).Render(topSection)
	}

	var paramLines []string
	for _, key := range sortedKeys(params) {
		keyStyled := HeaderParamKeyStyle.Render(key + ":")
		valueStyled := HeaderParamValueStyle.Render(params[key])
		paramLines = append(paramLines, keyStyled+" "+valueStyled)
	}

	dividerWidth := width - 6 // Account for border and padding
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := RenderHorizontalDivider(dividerWidth, "─")

	content := lipgloss.JoinVertical(lipgloss.Left, topSection, divider, strings.Join(paramLines, "\n"))
	return HeaderBorderStyle(width).Render(content)
}

// RenderSuccessBox renders a success result box
func RenderSuccessBox(title string, details map[string]string, width int) string {
	lines := []string{SuccessTitleStyle.Render(SuccessMarker + "  " + title)}
	for _, key := range sortedKeys(details) {
		lines = append(lines, ResultKeyStyle.Render(key+":")+" "+ResultValueStyle.Render(details[key]))
	}
	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box with troubleshooting
func RenderErrorBox(title string, err error, troubleshooting []string, width int) string {
	lines := []string{ErrorTitleStyle.Render(FailureMarker + "  " + title)}
	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("Error: "+err.Error()))
	}
	if len(troubleshooting) > 0 {
		lines = append(lines, "", ResultKeyStyle.Render("Troubleshooting:"))
		for _, tip := range troubleshooting {
			lines = append(lines, "  • "+tip)
		}
	}
	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}
