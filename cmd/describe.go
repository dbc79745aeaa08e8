package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabletalk/internal/nlq"
)

var (
	describeJSON   bool
	describePrompt bool
)

var describeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Show the schema and category values inferred for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireConfig(); err != nil {
			return err
		}
		ctx := cmd.Context()
		store, cleanup, err := openScratchStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		ds, err := store.LoadFile(ctx, args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if describeJSON {
			return writeJSONOut(w, ds)
		}
		if describePrompt {
			_, err := fmt.Fprintln(w, nlq.NewSynthesizer(nil, cfg.PromptSamples).SystemPrompt(ds))
			return err
		}

		fmt.Fprintf(w, "Table: %s (%d rows)\n\n", ds.Table, ds.Rows)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "COLUMN\tTYPE\tCATEGORY VALUES")
		for _, c := range ds.Columns {
			vals := "-"
			if v, ok := ds.Profile(c.Name); ok {
				vals = strings.Join(v, ", ")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Type, vals)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().BoolVar(&describeJSON, "json", false, "emit the dataset description as JSON")
	describeCmd.Flags().BoolVar(&describePrompt, "prompt", false, "print the system prompt sent for query synthesis")
}
