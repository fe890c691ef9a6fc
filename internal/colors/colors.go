// Package colors provides the colours used by the coff2pe trace output.
//
// Colors are automatically disabled when stdout is not a terminal; this comes
// from fatih/color. Use Init() to override based on CLI flags.
package colors

import "github.com/fatih/color"

// Init overrides the auto-detected color setting:
//   - forceColor == nil: keep auto-detected value
//   - forceColor == true: force colors on (--color)
//   - forceColor == false: force colors off
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

func ItalicFaint() *color.Color { return color.New(color.Italic, color.Faint) }

// Trace roles

func Header() *color.Color  { return color.New(color.Bold, color.FgHiBlue) }
func Section() *color.Color { return color.New(color.Bold, color.FgHiMagenta) }
func Symbol() *color.Color  { return color.New(color.Bold) }
func Aux() *color.Color     { return color.New(color.Faint, color.FgYellow) }
func Offset() *color.Color  { return color.New(color.Faint) }
func Flags() *color.Color   { return color.New(color.FgCyan) }
func Class() *color.Color   { return color.New(color.Faint, color.FgGreen) }
func Error() *color.Color   { return color.New(color.Bold, color.FgRed) }
