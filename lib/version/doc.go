// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the steward binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X and default to "unknown" / "0.1.0-dev" in development
// builds and tests:
//
//	go build -ldflags "-X github.com/bureau-foundation/steward/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// [Info] is the one-line form printed by --version; [Full] adds the Go
// toolchain and platform.
package version
