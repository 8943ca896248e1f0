package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorRed    = "\033[31m"
)

// Formatter prints user-facing progress. Colour is used only on a terminal.
type Formatter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w, color: isTerminal(w)}
}

// WithColor forces colour on or off.
func (f *Formatter) WithColor(on bool) *Formatter {
	f.color = on
	return f
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (f *Formatter) printf(color, prefix, format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if f.color {
		fmt.Fprintf(f.w, "%s%s%s%s\n", color, prefix, msg, colorReset)
		return
	}
	fmt.Fprintf(f.w, "%s%s\n", prefix, msg)
}

// Status prints one progress line. It matches ports.StatusFunc.
func (f *Formatter) Status(msg string) {
	f.printf(colorDim, "[telemost] ", "%s", msg)
}

func (f *Formatter) Info(format string, args ...any) {
	f.printf(colorBlue, "", format, args...)
}

func (f *Formatter) Success(format string, args ...any) {
	f.printf(colorGreen, "", format, args...)
}

func (f *Formatter) Warning(format string, args ...any) {
	f.printf(colorYellow, "", format, args...)
}

func (f *Formatter) Error(format string, args ...any) {
	f.printf(colorRed, "", format, args...)
}

func (f *Formatter) RecordingStopped(duration time.Duration) {
	f.Info("Recording stopped (%s)", FormatDuration(duration))
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		f.printf(colorGreen, "  [ok] ", "%s: %s", name, detail)
	} else {
		f.printf(colorRed, "  [missing] ", "%s: %s", name, detail)
	}
}

// FormatDuration renders d as 1h02m03s, 2m03s or 3s.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
