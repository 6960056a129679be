package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/confmesh/confmesh/internal/client"
	"github.com/confmesh/confmesh/internal/config"
	"github.com/confmesh/confmesh/internal/negotiation"
)

var createName string

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room and wait for participants",
	Args:  cobra.NoArgs,
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

		roomID, err := sess.CreateRoom(createName)
		if err != nil {
			return err
		}

		fmt.Printf("Room created: %s\n", roomID)
		fmt.Printf("Share link:   %s\n", cfg.GetRoomLink(roomID))
		fmt.Printf("You are:      %s\n", sess.ParticipantID())

		return watch(sess)
	},
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "participant id to use (server assigns one if empty)")
	rootCmd.AddCommand(createCmd)
}

// dial builds a session against cfg and connects its signaling channel.
func dial(cfg *config.Config) (*client.Session, error) {
	sess := client.NewSession(cfg, negotiation.NewPionFactory(cfg), negotiation.Options{
		FallbackDelay:   cfg.FallbackDelay,
		DisconnectGrace: cfg.DisconnectGrace,
		StabilityWindow: cfg.StabilityWindow,
	})
	if err := sess.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.WebSocketURL, err)
	}
	return sess, nil
}

// watch reports the connected-peer count until interrupted or the
// signaling connection drops.
func watch(sess *client.Session) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ticker.C:
			if n := sess.ConnectedCount(); n != last {
				fmt.Printf("Connected peers: %d\n", n)
				last = n
			}
		case <-interrupt:
			fmt.Println("Leaving room")
			return nil
		case <-sess.Done():
			return client.ErrDisconnected
		}
	}
}
