// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework shared by the steward binaries:
// a [Command] tree with pflag parsing, help output and typo
// suggestions, the --json output helper, and logger construction that
// picks text or JSON output depending on whether stderr is a terminal.
package cli
