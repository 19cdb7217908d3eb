package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpchat/cli/internal/chat"
	"github.com/BioHazard786/Warpchat/cli/internal/ui"
)

var flagPeersWait time.Duration

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List who is online",
	Long: `Connect to the rendezvous server, print everyone currently online and exit.

Examples:
  warpchat peers
  warpchat peers --wait 10s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listPeers(cmd)
	},
}

func init() {
	peersCmd.Flags().DurationVar(&flagPeersWait, "wait", 5*time.Second, "How long to wait for the presence list")
	rootCmd.AddCommand(peersCmd)
}

func listPeers(cmd *cobra.Command) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	sp := ui.NewConnectionSpinner("Connecting to " + cfg.Domain + "...")
	sp.Start()
	node, err := StartNode(cmd.Context(), cfg)
	if err != nil {
		sp.Error(err.Error())
		return err
	}
	defer node.Close()
	sp.UpdateMessage("Waiting for presence list...")

	timeout := time.After(flagPeersWait)
	for {
		select {
		case ev, ok := <-node.Events():
			if !ok {
				sp.Stop()
				return fmt.Errorf("connection closed before the presence list arrived")
			}
			switch ev.Kind {
			case chat.EventPeers:
				sp.Stop()
				rows := make([]ui.PeerRow, len(ev.Peers))
				for i, p := range ev.Peers {
					rows[i] = ui.PeerRow{Username: p.Username, PeerID: p.PeerID, Status: p.Status}
				}
				ui.RenderPeersTable(fmt.Sprintf("%s Online as %s", ui.IconPeer, node.Username()), rows)
				return nil
			case chat.EventError:
				sp.Stop()
				return ev.Err
			case chat.EventDisconnected:
				sp.Stop()
				return fmt.Errorf("disconnected from %s", cfg.Domain)
			}
		case <-timeout:
			sp.Stop()
			return fmt.Errorf("no presence list from %s within %s", cfg.Domain, flagPeersWait)
		case <-cmd.Context().Done():
			sp.Stop()
			return cmd.Context().Err()
		}
	}
}
