package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/confmesh/confmesh/internal/config"
	"github.com/confmesh/confmesh/internal/version"
)

var flagOpts config.Options

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "confmesh",
	Short:   "Mesh conference sessions over WebRTC with relayed signaling",
	Long:    `Confmesh coordinates direct media sessions between participants that cannot address each other directly. It relays session descriptions and network-path candidates through a signaling server, resolves simultaneous-initiation races, and reports how much of the mesh is actually connected.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagOpts.Domain, "domain", "", "signaling server domain")
	pf.BoolVar(&flagOpts.Insecure, "insecure", false, "use ws:// instead of wss://")
	pf.StringVar(&flagOpts.STUNServer, "stun", "", "STUN server URL")
	pf.StringVar(&flagOpts.TURNServer, "turn", "", "TURN server host")
	pf.StringVar(&flagOpts.TURNUser, "turn-user", "", "TURN username")
	pf.StringVar(&flagOpts.TURNPass, "turn-pass", "", "TURN password")
}
