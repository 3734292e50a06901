package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/facefind/internal/app"
)

var reembedCmd = &cobra.Command{
	Use:   "reembed <scope>",
	Short: "Run face extraction again for every file in a scope",
	Long: `Run face extraction again for every file in a scope, for example after
a model upgrade. With nats.url set the files are queued for the workers;
otherwise extraction runs inside facectl.`,
	Args: cobra.ExactArgs(1),
	RunE: runReembed,
}

func init() {
	rootCmd.AddCommand(reembedCmd)
}

func runReembed(cmd *cobra.Command, args []string) error {
	scope := args[0]
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	inline := cfg.NATS.URL == ""
	a, err := app.New(ctx, cfg, app.Options{Vision: inline})
	if err != nil {
		return err
	}
	defer a.Close()

	bar := newProgressBar("Queueing files")
	queued, err := a.Service.Reembed(ctx, scope, func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}
	if !inline {
		fmt.Printf("queued %d files of %s for extraction\n", queued, scope)
		return nil
	}

	bar = newProgressBar("Extracting faces")
	processed, err := a.Service.ProcessPending(ctx, scope, func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}
	fmt.Printf("re-extracted %d files of %s\n", processed, scope)
	return nil
}

func newProgressBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
