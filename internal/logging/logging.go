package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init configures the process-wide logrus logger. Level comes from
// LOG_LEVEL; production default only shows warnings and errors.
func Init() {
	level := log.WarnLevel

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = log.DebugLevel
		case "info":
			level = log.InfoLevel
		case "warn", "warning":
			level = log.WarnLevel
		case "error", "production", "prod":
			level = log.ErrorLevel
		}
	}

	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
}
