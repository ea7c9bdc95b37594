// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rcon

import "testing"

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		raw  bool
		want string
	}{
		{"companies", nil, false, "companies"},
		{"move", []string{"4", "255"}, false, "move 4 255"},
		{"say", []string{"he said \"hi\"\nreset_company 1"}, false, `say he said \"hi\" reset_company 1`},
		{"say", []string{`C:\maps`}, false, `say C:\\maps`},
		{"say", []string{"a\tb\rc"}, false, "say a b c"},
		{"load_scenario", []string{"my \"map\".scn"}, true, "load_scenario my \"map\".scn"},
	}
	for _, test := range tests {
		if got := BuildCommand(test.name, test.args, test.raw); got != test.want {
			t.Errorf("BuildCommand(%q, %q, %v) = %q, want %q", test.name, test.args, test.raw, got, test.want)
		}
	}
}

func TestLooksLikeError(t *testing.T) {
	tests := map[string]bool{
		"":                                   false,
		"Company reset":                      false,
		"ERROR: no such company":             true,
		"Unknown command 'foo'":              true,
		"usage: move <client> <company>":     true,
		"Loading scenario failed":            true,
		"#:1(Red) Company Name: 'Acme'  ...": false,
	}
	for response, want := range tests {
		if got := LooksLikeError(response); got != want {
			t.Errorf("LooksLikeError(%q) = %v, want %v", response, got, want)
		}
	}
}
