// Package browser sends the user to the authorization URL.
package browser

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	slogctx "github.com/veqryn/slog-context"
)

// Navigator takes the user to a URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// System opens URLs in the default web browser.
type System struct{}

func (System) Navigate(ctx context.Context, url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	// the browser keeps running after the command returns
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	return nil
}

// Printer writes the URL for the user to open by hand.
type Printer struct {
	Out io.Writer
}

func (p Printer) Navigate(_ context.Context, url string) error {
	_, err := fmt.Fprintf(p.Out, "Log in at the following URL if your browser does not open it:\n\n  %s\n\n", url)
	return err
}

// PrintAndOpen prints the URL and then tries the browser. A launcher that
// starts is no proof a browser opened, so the URL is always shown.
type PrintAndOpen struct {
	Printer Printer
	Opener  Navigator
}

func (n PrintAndOpen) Navigate(ctx context.Context, url string) error {
	if err := n.Printer.Navigate(ctx, url); err != nil {
		return err
	}

	if n.Opener == nil {
		return nil
	}
	if err := n.Opener.Navigate(ctx, url); err != nil {
		slogctx.Debug(ctx, "Could not open a browser", "error", err)
	}

	return nil
}
