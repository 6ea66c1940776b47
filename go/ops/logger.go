// Package ops holds process-level operational plumbing shared by the
// binaries under cmd/: logging bootstrap and configuration parsing.
package ops

import (
	log "github.com/sirupsen/logrus"
)

// LogConfig configures logging of the process, and is embedded in the
// top-level configuration of each binary.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// InitLog applies the LogConfig to the logrus standard logger.
func InitLog(cfg LogConfig) {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	}

	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("failed to parse log level")
	} else {
		log.SetLevel(lvl)
	}
}
