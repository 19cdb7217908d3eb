package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpchat/cli/internal/ui"
	"github.com/BioHazard786/Warpchat/cli/internal/version"
)

var (
	flagDomain   string
	flagInsecure bool
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagUsername string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpchat",
	Short: "Peer-to-peer terminal chat over WebRTC",
	Long: `WarpChat is a terminal chat client. A small rendezvous server tracks who is
online and carries the global room; private conversations run over direct
WebRTC data channels between peers, falling back to TURN when needed.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagDomain, "domain", "d", "", "Rendezvous server domain (env: DOMAIN)")
	pf.BoolVar(&flagInsecure, "insecure", false, "Connect with ws:// instead of wss://")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server (env: STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "TURN server (env: TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env: TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env: TURN_PASSWORD)")
	pf.BoolVar(&flagRelay, "relay", false, "Force all peer traffic through TURN")
	pf.StringVarP(&flagUsername, "username", "u", "", "Display name, generated when empty (env: WARPCHAT_USERNAME)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
