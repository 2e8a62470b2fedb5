package cmd

import (
	"fmt"
	"log"

	"github.com/cheerawab/cherry0324/cherry"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register-commands",
	Short: "Overwrite the bot's slash commands and exit",
	Long: "Registers every slash command with discord, replacing any " +
		"existing ones. Commands are registered to discord.guild_id when " +
		"set, globally otherwise.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		bot, err := cherry.New(cfg)
		if err != nil {
			log.Fatalf("error creating bot: %s", err.Error())
		}
		created, err := bot.RegisterSlashCommands()
		if err != nil {
			log.Fatalf("error registering commands: %s", err.Error())
		}
		out := cmd.OutOrStdout()
		for _, c := range created {
			fmt.Fprintf(out, "registered /%s (%s)\n", c.Name, c.ID)
		}
		fmt.Fprintf(out, "%d commands registered\n", len(created))
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
}
