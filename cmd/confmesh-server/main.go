package main

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/confmesh/confmesh/internal/config"
	"github.com/confmesh/confmesh/internal/logging"
	"github.com/confmesh/confmesh/internal/registry"
	"github.com/confmesh/confmesh/internal/server"
	"github.com/confmesh/confmesh/internal/signaling"
)

func main() {
	logging.Init()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.WithError(err).Fatal("loading config")
	}

	reg := registry.New(cfg.RoomCapacity)
	router := signaling.NewRouter(reg, nil)

	http.HandleFunc("/health", server.HealthHandler)
	http.HandleFunc("/ws", server.ServeWs(router))

	log.WithField("addr", cfg.ListenAddr).Info("starting signaling server")
	log.Fatal(http.ListenAndServe(cfg.ListenAddr, nil))
}
