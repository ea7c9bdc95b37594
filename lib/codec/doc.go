// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the steward's
// control socket and its clients.
//
// JSON is used where people read the output (CLI --json, settings
// files); CBOR is used on the control socket between steward and the
// daemon. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2), so the same value always produces the same bytes.
//
// Types that appear in both places carry only `json` tags:
// fxamacker/cbor falls back to them when no `cbor` tag is present.
// Types that only ever travel over the socket use `cbor` tags. A field
// never carries both.
package codec
