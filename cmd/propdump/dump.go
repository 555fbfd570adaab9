package main

import (
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/l1jgo/propsrv/internal/persist"
	"github.com/l1jgo/propsrv/internal/property"
)

type dumpOutput struct {
	Class      string            `json:"class"`
	Properties map[string]string `json:"properties"`
	Unresolved []unresolvedEntry `json:"unresolved"`
}

type unresolvedEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var (
		class string
		blob  bool
	)
	cmd := &cobra.Command{
		Use:   "dump [flags] FILE",
		Short: "Print a saved property stream as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, regs, err := buildLayouts(opts)
			if err != nil {
				return err
			}
			reg := regs[class]
			if reg == nil {
				return fmt.Errorf("unknown class %q", class)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if blob {
				if data, err = persist.DecodeBlob(data); err != nil {
					return err
				}
			}
			out, err := dumpStream(reg, data)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&class, "class", "", "entity class of the stream")
	cmd.Flags().BoolVar(&blob, "blob", false, "input is a stored database blob")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

// dumpStream loads data into a fresh block and renders every stored value
// in text form. Entries the layout cannot place are listed by size.
func dumpStream(reg *property.Registrator, data []byte) (*dumpOutput, error) {
	props := property.New(reg, nil)
	defer props.Release()

	if err := props.Load(data); err != nil {
		return nil, err
	}
	out := &dumpOutput{
		Class:      reg.Class(),
		Properties: make(map[string]string),
		Unresolved: []unresolvedEntry{},
	}
	for _, prop := range reg.Properties() {
		if !prop.HasStorage() || prop.IsTemporary() {
			continue
		}
		out.Properties[prop.Name()] = property.FormatValue(prop, props.RawData(prop))
	}
	for _, u := range props.Unresolved() {
		out.Unresolved = append(out.Unresolved, unresolvedEntry{Name: u.Name, Type: u.TypeName, Size: len(u.Data)})
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
