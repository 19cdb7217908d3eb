package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpchat/cli/internal/logging"
	"github.com/BioHazard786/Warpchat/cli/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"c"},
	Short:   "Open the chat screen",
	Long: `Join the rendezvous server and open the chat screen.

The first tab is the global room. Every other tab is a private conversation
carried over a direct peer connection, opened on your first message.

Examples:
  warpchat chat
  warpchat chat --username otter
  warpchat chat --domain chat.example.com --relay`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	// The screen belongs to the TUI; logs go to a file or nowhere.
	if cfg.LogFile != "" {
		f, err := logging.InitFile(cfg.LogFile)
		if err != nil {
			return err
		}
		defer f.Close()
	} else {
		logging.InitWriter(io.Discard)
	}

	sp := ui.NewConnectionSpinner("Connecting to " + cfg.Domain + "...")
	sp.Start()
	node, err := StartNode(cmd.Context(), cfg)
	if err != nil {
		sp.Error(err.Error())
		return err
	}
	sp.Stop()
	defer node.Close()

	return ui.RunChat(cmd.Context(), node)
}
