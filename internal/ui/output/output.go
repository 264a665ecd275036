// Package output builds termenv outputs with kiln's color rules.
package output

import (
	"io"
	"os"

	"github.com/muesli/termenv"
)

// ColorProfile returns Ascii when NO_COLOR is set and the detected profile otherwise.
func ColorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

// New creates a termenv.Output for w. A nil writer means os.Stderr.
func New(w io.Writer) *termenv.Output {
	if w == nil {
		w = os.Stderr
	}
	return termenv.NewOutput(w, termenv.WithProfile(ColorProfile()), termenv.WithTTY(true))
}

// Paint renders s in the given hex color on out.
func Paint(out *termenv.Output, s, hex string) string {
	return out.String(s).Foreground(termenv.RGBColor(hex)).String()
}
