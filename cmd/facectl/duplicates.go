package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/your-org/facefind/internal/app"
	"github.com/your-org/facefind/internal/models"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List near-duplicate files",
	Long: `List groups of near-duplicate files within a scope and/or uploader.

With --delete, every group keeps its lowest file id and the other members
are deleted.

Examples:
  facectl duplicates --scope gala-2024
  facectl duplicates --uploader alice --json
  facectl duplicates --scope gala-2024 --delete`,
	Args: cobra.NoArgs,
	RunE: runDuplicates,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)

	duplicatesCmd.Flags().String("scope", "", "Restrict to one scope")
	duplicatesCmd.Flags().String("uploader", "", "Restrict to one uploader")
	duplicatesCmd.Flags().Bool("delete", false, "Delete all but the first file of each group")
	duplicatesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	filter := models.FileFilter{
		Scope:      mustGetString(cmd, "scope"),
		UploaderID: mustGetString(cmd, "uploader"),
	}
	res, err := a.Service.FindDuplicates(ctx, filter)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else if len(res.Groups) == 0 {
		fmt.Println("no duplicates found")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILES\tSIMILARITY\tREASON")
		for _, g := range res.Groups {
			fmt.Fprintf(w, "%s\t%.4f\t%s\n", joinIDs(g.FileIDs), g.Similarity, g.Reason)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if !mustGetBool(cmd, "delete") || len(res.Groups) == 0 {
		return nil
	}
	deleted, err := a.Service.DeleteDuplicates(ctx, "", redundant(res.Groups))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "deleted %d files: %s\n", len(deleted), joinIDs(deleted))
	return nil
}

// redundant picks every group member except the lowest id. A file kept by
// one group is never deleted through another.
func redundant(groups []models.DuplicateGroup) []int64 {
	keep := make(map[int64]bool)
	for _, g := range groups {
		lowest := g.FileIDs[0]
		for _, id := range g.FileIDs[1:] {
			lowest = min(lowest, id)
		}
		keep[lowest] = true
	}
	var out []int64
	seen := make(map[int64]bool)
	for _, g := range groups {
		for _, id := range g.FileIDs {
			if !keep[id] && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
