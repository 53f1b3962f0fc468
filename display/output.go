// Package display renders command output as pterm tables, JSON or YAML.
package display

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/briefing/errors"
)

// ShouldOutputJSON reports whether --json was set on the command or the root.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}
	globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json")
	return globalFlag
}

// MarshalJSON pretty-prints v. Piped output is compact unless running under
// go test, so golden comparisons stay readable.
func MarshalJSON(v interface{}) ([]byte, error) {
	if flag.Lookup("test.v") != nil || isTerminal(os.Stdout) {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// OutputJSON writes v as JSON to stdout.
func OutputJSON(v interface{}) error {
	return Write(os.Stdout, v, "json")
}

// Write encodes v to w as json or yaml.
func Write(w io.Writer, v interface{}, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = MarshalJSON(v)
	case "yaml", "":
		data, err = yaml.Marshal(v)
	default:
		return errors.Newf("unsupported format: %s (supported: yaml, json)", format)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", format)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
