package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chimera/internal/domain"
)

var (
	queryLimit    int
	queryFloor    float64
	queryJSON     bool
	queryClientID string
)

var queryCmd = &cobra.Command{
	Use:   "query <question...>",
	Short: "Ask the index a question",
	Long: `Run a natural-language query through intent extraction, graph recall,
confidence scoring and content assembly, and print the ranked documents.

Examples:
  chimera-cli query who owns the acme migration
  chimera-cli query --limit 3 --floor 0.7 onboarding checklist
  chimera-cli query --json quarterly goals`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := chimera.QueryCommand(strings.Join(args, " "), queryClientID, queryLimit)
		if cmd.Flags().Changed("floor") {
			q.WithConfidenceFloor(queryFloor)
		}
		result, err := q.Execute(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if queryJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		printResult(out, result)
		return nil
	},
}

func printResult(w io.Writer, r *domain.StructuredResult) {
	if len(r.Candidates) == 0 {
		fmt.Fprintln(w, "No matching documents.")
		return
	}
	if r.Degraded {
		fmt.Fprintln(w, "(confidence scoring unavailable, showing similarity order)")
	}
	for i, e := range r.Candidates {
		conf := "  --"
		if e.ConfidenceKnown {
			conf = fmt.Sprintf("%3.0f%%", e.Confidence*100)
		}
		fmt.Fprintf(w, "%2d. %s %s [%s]\n", i+1, conf, e.Title, e.ID)
		if e.URL != "" {
			fmt.Fprintf(w, "      %s\n", e.URL)
		}
		if len(e.Tags) > 0 {
			fmt.Fprintf(w, "      tags: %s\n", strings.Join(e.Tags, ", "))
		}
		switch {
		case !e.ContentAvailable:
			fmt.Fprintf(w, "      (content unavailable: %s)\n", e.UnavailableReason)
		case e.ContentPreview != "":
			fmt.Fprintf(w, "      %s\n", strings.ReplaceAll(e.ContentPreview, "\n", "\n      "))
		}
		for _, rel := range e.RelatedItems {
			title := rel.Title
			if title == "" {
				title = rel.ID
			}
			fmt.Fprintf(w, "      -> %s (%s)\n", title, rel.Via)
		}
	}
	fmt.Fprintf(w, "\nquery %s, %d results in %s\n", r.QueryID, len(r.Candidates), r.Elapsed.Round(time.Millisecond))
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "maximum results (0 uses CHIMERA_QUERY_DEFAULT_LIMIT)")
	queryCmd.Flags().Float64Var(&queryFloor, "floor", 0, "minimum confidence in [0,1] (defaults to CHIMERA_CONFIDENCE_FLOOR)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the result as JSON")
	queryCmd.Flags().StringVar(&queryClientID, "client", "cli", "client id recorded with the query")
	rootCmd.AddCommand(queryCmd)
}
