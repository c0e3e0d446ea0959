// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the CLI's structured, colorized terminal output:
// status lines (Success/Info/Warning), section headers, and value
// formatting helpers. Color is gated on TTY detection and NO_COLOR.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Exported color handles used directly by callers that want inline
// colored fragments (e.g. ui.Cyan.Sprint("changesd open")).
var (
	Cyan   = color.New(color.FgCyan)
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Dim    = color.New(color.Faint)

	red  = color.New(color.FgRed)
	bold = color.New(color.Bold)
)

// InitColors gates color output on the --no-color flag, the NO_COLOR
// environment variable, and whether stdout is a terminal at all.
func InitColors(noColor bool) {
	enabled := !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	color.NoColor = !enabled
}

// Success prints a green "✓" status line to stdout.
func Success(msg string) {
	fmt.Println(Green.Sprint("✓"), msg)
}

// Successf is Success with fmt.Sprintf formatting.
func Successf(format string, args ...any) {
	Success(fmt.Sprintf(format, args...))
}

// Info prints a plain informational line to stdout.
func Info(msg string) {
	fmt.Println(msg)
}

// Infof is Info with fmt.Sprintf formatting.
func Infof(format string, args ...any) {
	Info(fmt.Sprintf(format, args...))
}

// Warning prints a yellow "!" status line to stdout.
func Warning(msg string) {
	fmt.Println(Yellow.Sprint("!"), msg)
}

// Warningf is Warning with fmt.Sprintf formatting.
func Warningf(format string, args ...any) {
	Warning(fmt.Sprintf(format, args...))
}

// ErrorLine prints a red "✗" status line to stdout, for non-fatal
// errors a command wants to report without exiting (fatal CLI errors
// use wfserr.FatalError instead).
func ErrorLine(msg string) {
	fmt.Println(red.Sprint("✗"), msg)
}

// Header prints a bold section header.
func Header(title string) {
	fmt.Println()
	fmt.Println(bold.Sprint(title))
}

// SubHeader prints a secondary section header, indented one level below
// Header.
func SubHeader(title string) {
	fmt.Println()
	fmt.Println("  " + bold.Sprint(title))
}

// Label formats a field label for aligned key/value output.
func Label(text string) string {
	return bold.Sprint(text)
}

// DimText renders text in the faint style, used for secondary detail
// (paths, hints) alongside a primary value.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText renders an integer count, dimmed when zero so empty listings
// read as unremarkable rather than alarming.
func CountText(n int) string {
	s := fmt.Sprintf("%d", n)
	if n == 0 {
		return Dim.Sprint(s)
	}
	return s
}
