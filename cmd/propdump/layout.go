package main

import (
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/l1jgo/propsrv/internal/property"
)

type classLayout struct {
	Class       string            `json:"class"`
	Fingerprint string            `json:"fingerprint"`
	Shared      string            `json:"shared_fingerprint"`
	Public      int               `json:"public_size"`
	Protected   int               `json:"protected_size"`
	Private     int               `json:"private_size"`
	Complex     int               `json:"complex_count"`
	Properties  []property.Layout `json:"properties"`
}

func newLayoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the layout of every class as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sch, regs, err := buildLayouts(opts)
			if err != nil {
				return err
			}
			out := make([]classLayout, 0, len(regs))
			for _, name := range sch.ClassNames() {
				out = append(out, describeLayout(regs[name]))
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func describeLayout(reg *property.Registrator) classLayout {
	fp, shared := reg.Fingerprint(), reg.SharedFingerprint()
	return classLayout{
		Class:       reg.Class(),
		Fingerprint: hex.EncodeToString(fp[:]),
		Shared:      hex.EncodeToString(shared[:]),
		Public:      reg.PublicSize(),
		Protected:   reg.ProtectedSize(),
		Private:     reg.PrivateSize(),
		Complex:     reg.ComplexCount(),
		Properties:  reg.Layouts(),
	}
}
