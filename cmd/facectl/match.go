package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/your-org/facefind/internal/app"
)

var matchCmd = &cobra.Command{
	Use:   "match <face-id>",
	Short: "Rank the files of a scope against an uploaded face",
	Long: `Rank the files of a scope against an uploaded face using the stored
embeddings. The face's own scope is used unless --scope is given.

Examples:
  facectl match 42
  facectl match 42 --scope gala-2024 --threshold 0.7
  facectl match 42 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("scope", "", "Scope to search (default: the face's scope)")
	matchCmd.Flags().Float64("threshold", 0, "Minimum cosine similarity in [0,1] (default: matching.match_threshold)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMatch(cmd *cobra.Command, args []string) error {
	faceID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid face id %q", args[0])
	}
	var threshold *float64
	if cmd.Flags().Changed("threshold") {
		v, _ := cmd.Flags().GetFloat64("threshold")
		threshold = &v
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Service.MatchFace(ctx, "", faceID, mustGetString(cmd, "scope"), threshold)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(res)
	}
	if len(res.Matches) == 0 {
		fmt.Printf("no matches in %s at threshold %.2f (%s)\n", res.Scope, res.Threshold, res.Reason)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSCORE\tCONTENT")
	for _, m := range res.Matches {
		fmt.Fprintf(w, "%d\t%.4f\t%s\n", m.Owner.ID, m.Score, m.ContentKey)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d matches in %s at threshold %.2f\n", len(res.Matches), res.Scope, res.Threshold)
	return nil
}
