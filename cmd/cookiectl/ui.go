package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(w io.Writer, format string, a ...any) {
	_, _ = success.Fprintln(w, fmt.Sprintf(format, a...))
}

func printWarn(w io.Writer, format string, a ...any) {
	_, _ = warn.Fprintln(w, fmt.Sprintf(format, a...))
}

func printError(w io.Writer, format string, a ...any) {
	_, _ = danger.Fprintln(w, fmt.Sprintf(format, a...))
}

func printInfo(w io.Writer, format string, a ...any) {
	_, _ = neutral.Fprintln(w, fmt.Sprintf(format, a...))
}

func signed(n int64) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}
