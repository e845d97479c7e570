package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ui writes status lines, colored when w is a terminal.
type ui struct {
	w   io.Writer
	out *termenv.Output
}

func newUI(w io.Writer) *ui {
	profile := termenv.Ascii
	if isTerminal(w) && os.Getenv("NO_COLOR") == "" {
		profile = termenv.ANSI
	}
	return &ui{w: w, out: termenv.NewOutput(w, termenv.WithProfile(profile))}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (u *ui) paint(s, color string) string {
	return u.out.String(s).Foreground(u.out.Color(color)).String()
}

func (u *ui) dim(s string) string {
	return u.out.String(s).Faint().String()
}

func (u *ui) bold(s string) string {
	return u.out.String(s).Bold().String()
}

func (u *ui) success(format string, args ...any) {
	fmt.Fprintf(u.w, "%s %s\n", u.paint("✓", "2"), fmt.Sprintf(format, args...))
}

func (u *ui) failure(format string, args ...any) {
	fmt.Fprintf(u.w, "%s %s\n", u.paint("✗", "1"), fmt.Sprintf(format, args...))
}

func (u *ui) info(format string, args ...any) {
	fmt.Fprintf(u.w, "%s %s\n", u.paint("●", "4"), fmt.Sprintf(format, args...))
}
