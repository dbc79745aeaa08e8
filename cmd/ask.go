package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/nlq"
	"github.com/KaramelBytes/tabletalk/internal/sqlstore"
)

var (
	askJSON    bool
	askShowSQL bool
)

var askCmd = &cobra.Command{
	Use:   "ask <file> <question>",
	Short: "Load a file and answer one question about it",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		o, err := buildOracle(ctx, c, logger)
		if err != nil {
			return err
		}
		opts, err := pipelineOptions(c)
		if err != nil {
			return err
		}
		store, cleanup, err := openScratchStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		if _, err := store.LoadFile(ctx, args[0]); err != nil {
			return err
		}

		question := strings.Join(args[1:], " ")
		ans, err := nlq.NewPipeline(store, o, opts, logger.Named("nlq")).Ask(ctx, question)
		if err != nil {
			return explain(err, c)
		}
		if askJSON {
			return writeJSONOut(cmd.OutOrStdout(), ans)
		}
		return writeAnswer(cmd.OutOrStdout(), ans, askShowSQL)
	},
}

// openScratchStore opens a dataset store backed by a throwaway SQLite file.
func openScratchStore(ctx context.Context) (*dataset.Store, func(), error) {
	dir, err := os.MkdirTemp("", "tabletalk-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}
	backend, err := sqlstore.Open(ctx, filepath.Join(dir, "data.db"))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, nil, err
	}
	cleanup := func() {
		_ = backend.Close()
		_ = os.RemoveAll(dir)
	}
	return dataset.NewStore(backend, profileOptions(cfg), logger.Named("dataset")), cleanup, nil
}

func writeJSONOut(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func writeAnswer(w io.Writer, ans *nlq.Answer, showSQL bool) error {
	if !ans.OnTopic {
		_, err := fmt.Fprintln(w, ans.Message)
		return err
	}
	if showSQL {
		if ans.RewrittenQuestion != ans.Question {
			fmt.Fprintf(w, "Rewritten: %s\n", ans.RewrittenQuestion)
		}
		fmt.Fprintf(w, "SQL: %s\n\n", ans.Query)
	}
	if len(ans.Result) == 0 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(ans.Columns, "\t"))
	for _, row := range ans.Result {
		cells := make([]string, len(row.Values()))
		for i, v := range row.Values() {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(ans.Result))
	return err
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askJSON, "json", false, "emit the answer as JSON")
	askCmd.Flags().BoolVar(&askShowSQL, "show-sql", false, "print the rewritten question and generated SQL")
}
