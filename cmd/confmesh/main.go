package main

import (
	"github.com/confmesh/confmesh/cmd/confmesh/cmd"
	"github.com/confmesh/confmesh/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
