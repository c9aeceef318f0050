package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Level colors a value by how far it is above the WHO guideline for the field.
func Level(value, guideline float32) string {
	switch {
	case value <= guideline:
		return Green(value)
	case value <= 2*guideline:
		return Yellow(value)
	default:
		return Red(value)
	}
}
