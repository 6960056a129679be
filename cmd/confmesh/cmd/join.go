package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/confmesh/confmesh/internal/config"
)

var joinName string

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join an existing room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagOpts)
		if err != nil {
			return err
		}

		sess, err := dial(cfg)
		if err != nil {
			return err
		}
		defer sess.Close()

		members, err := sess.JoinRoom(args[0], joinName)
		if err != nil {
			return err
		}

		fmt.Printf("Joined room:  %s\n", sess.RoomID())
		fmt.Printf("Created by:   %s\n", sess.CreatorID())
		fmt.Printf("You are:      %s\n", sess.ParticipantID())
		if len(members) == 0 {
			fmt.Println("No one else here yet")
		} else {
			fmt.Printf("Already here: %v\n", members)
		}

		return watch(sess)
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinName, "name", "", "participant id to use (server assigns one if empty)")
	rootCmd.AddCommand(joinCmd)
}
