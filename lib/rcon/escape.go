// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rcon

import "strings"

var argumentEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// Escape makes s safe to embed in a console command line: backslashes
// and double quotes are escaped, and line breaks and tabs become
// spaces so one argument cannot smuggle in a second command.
func Escape(s string) string {
	return argumentEscaper.Replace(s)
}

// BuildCommand joins name and args into a command line. Arguments are
// escaped unless raw is set; the command name never is.
func BuildCommand(name string, args []string, raw bool) string {
	if len(args) == 0 {
		return name
	}
	joined := strings.Join(args, " ")
	if !raw {
		joined = Escape(joined)
	}
	return name + " " + joined
}

var errorIndicators = []string{
	"error",
	"failed",
	"invalid",
	"not found",
	"unknown command",
	"usage:",
	"syntax error",
}

// LooksLikeError reports whether a console response carries one of the
// server's error phrasings. An empty response is not an error.
func LooksLikeError(response string) bool {
	lower := strings.ToLower(response)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
