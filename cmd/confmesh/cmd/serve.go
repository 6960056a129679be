package cmd

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/confmesh/confmesh/internal/config"
	"github.com/confmesh/confmesh/internal/registry"
	"github.com/confmesh/confmesh/internal/server"
	"github.com/confmesh/confmesh/internal/signaling"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagOpts)
		if err != nil {
			return err
		}

		reg := registry.New(cfg.RoomCapacity)
		router := signaling.NewRouter(reg, nil)

		mux := http.NewServeMux()
		mux.HandleFunc("/health", server.HealthHandler)
		mux.HandleFunc("/ws", server.ServeWs(router))

		log.WithField("addr", cfg.ListenAddr).Info("starting signaling server")
		return http.ListenAndServe(cfg.ListenAddr, mux)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagOpts.ListenAddr, "listen", "", "listen address")
	serveCmd.Flags().IntVar(&flagOpts.RoomCapacity, "capacity", 0, "maximum participants per room")
	rootCmd.AddCommand(serveCmd)
}
