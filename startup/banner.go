// Package startup renders what the server and pairctl print to the terminal.
package startup

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiCyan  = "\033[36m"
	ansiGreen = "\033[32m"

	margin = "    "
)

// BannerOptions configures the startup banner display.
type BannerOptions struct {
	Version    string
	LocalURL   string
	RelayURL   string
	Namespaces string // e.g. "eip155 (3 chains)"
	DevMode    bool
}

// Printer writes styled output. Styling is off unless Color is set.
type Printer struct {
	W     io.Writer
	Color bool
}

// Stdout returns a printer for standard output that styles text only when
// stdout is a terminal and NO_COLOR is unset.
func Stdout() *Printer {
	return &Printer{
		W:     os.Stdout,
		Color: os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (p *Printer) style(code, text string) string {
	if !p.Color {
		return text
	}
	return code + text + ansiReset
}

func (p *Printer) line(format string, args ...any) {
	fmt.Fprintf(p.W, margin+format+"\n", args...)
}

// row prints a labelled value with labels padded to one column.
func (p *Printer) row(label, value string) {
	p.line("%s %s", p.style(ansiDim, fmt.Sprintf("%-8s", label)), value)
}

// Banner prints the server name, its endpoints and the chain catalog.
func (p *Printer) Banner(opts BannerOptions) {
	fmt.Fprintln(p.W)

	title := p.style(ansiBold+ansiCyan, "pairkit")
	if opts.Version != "" {
		title += " " + p.style(ansiDim, opts.Version)
	}
	if opts.DevMode {
		title += " " + p.style(ansiDim, "(dev)")
	}
	p.line("%s", title)
	fmt.Fprintln(p.W)

	p.row("local", p.style(ansiGreen, opts.LocalURL))
	p.row("relay", p.style(ansiGreen, opts.RelayURL))
	if opts.Namespaces != "" {
		p.row("chains", opts.Namespaces)
	}
	fmt.Fprintln(p.W)
}

// QRCode prints uri as a half-block QR code with label underneath.
func (p *Printer) QRCode(uri, label string) {
	var buf bytes.Buffer
	qrterminal.GenerateWithConfig(uri, qrterminal.Config{
		Level:          qrterminal.M,
		Writer:         &buf,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		QuietZone:      2,
	})

	for _, l := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		p.line("%s", l)
	}
	if label != "" {
		p.line("%s", p.style(ansiBold, label))
	}
	fmt.Fprintln(p.W)
}

// Footer prints the shutdown hint.
func (p *Printer) Footer() {
	p.line("%s", p.style(ansiDim, "Ctrl+C stops the server"))
	fmt.Fprintln(p.W)
}

func PrintBanner(opts BannerOptions) { Stdout().Banner(opts) }

func PrintQRCode(uri, label string) { Stdout().QRCode(uri, label) }

func PrintFooter() { Stdout().Footer() }
