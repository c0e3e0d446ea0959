// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
)

const completionCommands = "init open archive list serve completion"

// runCompletion executes the 'completion' CLI command, printing a shell
// completion script for bash, zsh, or fish to stdout.
func runCompletion(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: changesd completion <bash|zsh|fish>")
		os.Exit(1)
	}

	switch args[0] {
	case "bash":
		fmt.Printf(`_changesd() {
    local cur="${COMP_WORDS[COMP_CWORD]}"
    if [ "$COMP_CWORD" -eq 1 ]; then
        COMPREPLY=( $(compgen -W "%s" -- "$cur") )
    fi
}
complete -F _changesd changesd
`, completionCommands)
	case "zsh":
		fmt.Printf(`#compdef changesd
_changesd() {
    local -a commands
    commands=(%s)
    if (( CURRENT == 2 )); then
        _describe 'command' commands
    fi
}
_changesd
`, quoteZshWords(completionCommands))
	case "fish":
		for _, cmd := range splitWords(completionCommands) {
			fmt.Printf("complete -c changesd -n __fish_use_subcommand -a %s\n", cmd)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s (expected bash, zsh, or fish)\n", args[0])
		os.Exit(1)
	}
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	return words
}

func quoteZshWords(s string) string {
	out := ""
	for i, w := range splitWords(s) {
		if i > 0 {
			out += " "
		}
		out += "'" + w + "'"
	}
	return out
}
