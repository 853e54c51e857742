// Package console renders notices as lines on a terminal or log stream.
//
// When interactive, notices with actions print a numbered menu and block
// until a choice is read from the input. Otherwise Show returns as soon as
// the line is written and reports a dismissal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"notifyq/internal/display"
)

type Options struct {
	Out io.Writer
	In  io.Reader
	// Color is "auto", "always" or "never".
	Color       string
	Interactive bool
}

type Adapter struct {
	out         io.Writer
	colorize    bool
	interactive bool

	// outMu serializes writes so progress redraws never interleave with notices.
	outMu sync.Mutex

	in       io.Reader
	readOnce sync.Once
	lines    chan string
}

func New(opts Options) *Adapter {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	colorize := false
	switch strings.ToLower(opts.Color) {
	case "always":
		colorize = true
	case "never":
	default:
		colorize = shouldColorize(opts.Out)
	}
	return &Adapter{
		out:         opts.Out,
		in:          opts.In,
		colorize:    colorize,
		interactive: opts.Interactive,
		lines:       make(chan string),
	}
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (a *Adapter) Show(ctx context.Context, n display.Notice) (string, error) {
	a.outMu.Lock()
	a.printf("%s %s\n", a.badge(n.Kind), n.Message)
	if d := strings.TrimSpace(n.Detail); d != "" {
		for _, line := range strings.Split(d, "\n") {
			a.printf("    %s\n", a.paint(text.Faint, line))
		}
	}
	ask := a.interactive && len(n.Actions) > 0
	if ask {
		parts := make([]string, len(n.Actions))
		for i, act := range n.Actions {
			parts[i] = fmt.Sprintf("[%d] %s", i+1, act)
		}
		a.printf("    %s > ", strings.Join(parts, "  "))
	}
	a.outMu.Unlock()

	if !ask {
		return "", nil
	}
	return a.readChoice(ctx, n.Actions)
}

// readChoice accepts a 1-based index or an action label (case-insensitive).
// An empty line dismisses. Anything else re-prompts.
func (a *Adapter) readChoice(ctx context.Context, actions []string) (string, error) {
	a.readOnce.Do(func() { go a.readLines() })
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-a.lines:
			if !ok {
				return "", nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				return "", nil
			}
			if i, err := strconv.Atoi(line); err == nil && i >= 1 && i <= len(actions) {
				return actions[i-1], nil
			}
			for _, act := range actions {
				if strings.EqualFold(act, line) {
					return act, nil
				}
			}
			a.outMu.Lock()
			a.printf("    choose 1-%d > ", len(actions))
			a.outMu.Unlock()
		}
	}
}

// readLines owns the input for the adapter lifetime. Reads cannot be
// interrupted, so a canceled prompt leaves the next line for the next prompt.
func (a *Adapter) readLines() {
	sc := bufio.NewScanner(a.in)
	for sc.Scan() {
		a.lines <- sc.Text()
	}
	close(a.lines)
}

func (a *Adapter) Progress(ctx context.Context, title string, task display.ProgressTask) error {
	if task == nil {
		return nil
	}
	r := &reporter{a: a, title: title, start: time.Now()}
	r.Report("", 0)
	err := task(ctx, r)

	a.outMu.Lock()
	defer a.outMu.Unlock()
	if r.inline {
		a.printf("\n")
	}
	if err != nil {
		a.printf("%s %s: %v\n", a.badge(display.KindError), title, err)
		return err
	}
	a.printf("%s %s done in %s\n", a.badge(display.KindProgress), title, time.Since(r.start).Round(time.Millisecond))
	return nil
}

type reporter struct {
	a      *Adapter
	title  string
	start  time.Time
	inline bool
}

func (r *reporter) Report(message string, percent int) {
	line := fmt.Sprintf("%s %s %3d%%", r.a.badge(display.KindProgress), r.title, display.ClampPercent(percent))
	if message != "" {
		line += " " + message
	}
	r.a.outMu.Lock()
	defer r.a.outMu.Unlock()
	// On a terminal redraw one line; on a stream append lines.
	if r.a.colorize {
		r.a.printf("\r\x1b[2K%s", line)
		r.inline = true
		return
	}
	r.a.printf("%s\n", line)
}

func (a *Adapter) SetStatus(ctx context.Context, msg string, timeout time.Duration) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	suffix := ""
	if timeout > 0 {
		suffix = a.paint(text.Faint, fmt.Sprintf(" (%s)", timeout))
	}
	a.printf("%s %s%s\n", a.paint(text.FgCyan, "status:"), msg, suffix)
	return nil
}

func (a *Adapter) badge(k display.Kind) string {
	switch k {
	case display.KindError:
		return a.paint(text.FgRed, "[ERROR]")
	case display.KindWarning:
		return a.paint(text.FgYellow, "[WARN] ")
	case display.KindProgress:
		return a.paint(text.FgGreen, "[....] ")
	default:
		return a.paint(text.FgBlue, "[INFO] ")
	}
}

func (a *Adapter) paint(c text.Color, s string) string {
	if !a.colorize {
		return s
	}
	return c.Sprint(s)
}

func (a *Adapter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}
