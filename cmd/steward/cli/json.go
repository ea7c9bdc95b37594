// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"os"
	"reflect"

	"github.com/spf13/pflag"
)

// JSONOutput adds a --json flag to a command.
//
//	var output cli.JSONOutput
//	flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
//	output.AddFlags(flagSet)
//
//	// In Run:
//	if done, err := output.EmitJSON(statuses); done {
//	    return err
//	}
type JSONOutput struct {
	OutputJSON bool
}

// AddFlags registers --json on flagSet.
func (j *JSONOutput) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&j.OutputJSON, "json", false, "output as JSON")
}

// EmitJSON writes result to stdout as indented JSON when --json is
// set, and reports whether it did. A nil slice is written as [].
func (j *JSONOutput) EmitJSON(result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, WriteJSON(os.Stdout, normalizeNilSlice(result))
}

// WriteJSON writes value to w as indented JSON.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
