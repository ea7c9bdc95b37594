// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the steward's settings file.
//
// The file is named by the --config flag (via [LoadFile]) or the
// STEWARD_CONFIG environment variable (via [Load]). There is no search
// path. Files ending in .json are read as JSON with comments and
// trailing commas allowed, which keeps existing settings.json files
// working; .yaml and .yml files are read as YAML. Both formats use the
// same snake_case keys.
//
// One file describes a fleet of servers on one host: every entry of
// admin_ports is one server, and [Config.Servers] expands the shared
// settings into a [ServerConfig] per port.
//
// ${VAR} and ${VAR:-default} in admin_pass and control_socket are
// expanded from the environment after loading, so the password can
// stay out of the file.
//
// This package depends on no other steward packages.
package config
