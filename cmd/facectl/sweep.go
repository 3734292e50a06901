package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/facefind/internal/app"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete stored objects whose face or file record is gone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Service.SweepOrphans(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d orphaned objects\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
