package color

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// ANSI palette indices
const (
	Red     = "1"
	Green   = "2"
	Yellow  = "3"
	Blue    = "4"
	Magenta = "5"
	Cyan    = "6"
	White   = "7"
	Gray    = "8"

	BrightRed     = "9"
	BrightGreen   = "10"
	BrightYellow  = "11"
	BrightBlue    = "12"
	BrightMagenta = "13"
	BrightCyan    = "14"
	BrightWhite   = "15"
)

// NO_COLOR and dumb terminals resolve to Ascii
var profile = termenv.EnvColorProfile()

func EnableColor(enable bool) {
	if !enable {
		profile = termenv.Ascii
		return
	}
	profile = termenv.EnvColorProfile()
	if profile == termenv.Ascii {
		profile = termenv.ANSI
	}
}

func IsColorEnabled() bool {
	return profile != termenv.Ascii
}

func Colorize(color, text string) string {
	if !IsColorEnabled() {
		return text
	}
	return profile.String(text).Foreground(profile.Color(color)).String()
}

func RedText(text string) string {
	return Colorize(Red, text)
}

func BrightRedText(text string) string {
	return Colorize(BrightRed, text)
}

func GreenText(text string) string {
	return Colorize(Green, text)
}

func YellowText(text string) string {
	return Colorize(Yellow, text)
}

func BlueText(text string) string {
	return Colorize(Blue, text)
}

func MagentaText(text string) string {
	return Colorize(Magenta, text)
}

func CyanText(text string) string {
	return Colorize(Cyan, text)
}

func GrayText(text string) string {
	return Colorize(Gray, text)
}

func BoldText(text string) string {
	if !IsColorEnabled() {
		return text
	}
	return profile.String(text).Bold().String()
}

func Error(message string) string {
	return RedText("Error: ") + message
}

func Warning(message string) string {
	return YellowText("Warning: ") + message
}

func Highlight(text, highlight string) string {
	if !IsColorEnabled() || highlight == "" {
		return text
	}
	return strings.ReplaceAll(text, highlight, YellowText(highlight))
}

func Position(line, col int) string {
	return CyanText(fmt.Sprintf("%d:%d", line, col))
}

func ErrorWithPosition(line, col int, message, context string) string {
	if !IsColorEnabled() {
		if context == "" {
			return fmt.Sprintf("Error at %d:%d: %s", line, col, message)
		}
		return fmt.Sprintf("Error at %d:%d: %s\n%s", line, col, message, context)
	}

	out := fmt.Sprintf("%s at %s: %s", BoldText(BrightRedText("Error")), Position(line, col), message)
	if context != "" {
		out += "\n" + GrayText(context)
	}
	return out
}
