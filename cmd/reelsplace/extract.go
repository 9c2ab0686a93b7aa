package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iliyamo/reelsplace/internal/extract"
)

type extractOutput struct {
	Addresses []string `json:"addresses"`
	PlaceName *string  `json:"place_name"`
}

func newExtractCommand() *cobra.Command {
	var file string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print the addresses and place name found in a caption",
		Long:  "Read a caption from --file or standard input and print what the pipeline would extract from it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			caption, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read caption: %w", err)
			}

			out := runExtract(extract.New(), string(caption))
			if asJSON || !isTerminal(cmd.OutOrStdout()) {
				return writeJSON(cmd, out)
			}
			rows := make([][]string, 0, len(out.Addresses))
			for i, a := range out.Addresses {
				rows = append(rows, []string{strconv.Itoa(i + 1), a})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "Address"}, rows, []columnAlignment{alignRight, alignLeft}))
			name := "-"
			if out.PlaceName != nil {
				name = *out.PlaceName
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Place name:", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Caption file (default: standard input)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Always print JSON")
	return cmd
}

func runExtract(x *extract.Extractor, caption string) extractOutput {
	out := extractOutput{Addresses: x.Addresses(caption)}
	if name, ok := x.NameHint(caption, out.Addresses); ok {
		out.PlaceName = &name
	}
	return out
}
