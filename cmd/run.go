package cmd

import (
	"log"

	"github.com/cheerawab/cherry0324/cherry"
	"github.com/spf13/cobra"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the bot, admin API and (optionally) webhook server",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			bot, err := cherry.New(cfg)
			if err != nil {
				log.Fatalf("error creating bot: %s", err.Error())
			}

			if err = bot.Run(ctx); err != nil {
				log.Fatalf("error running bot: %s", err.Error())
			}
		},
	}
)

//goland:noinspection GoLinter
func init() {
	rootCmd.AddCommand(runCmd)
}
