package ops

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestInitLogAppliesLevelAndFormat(t *testing.T) {
	defer func(lvl log.Level, f log.Formatter) {
		log.SetLevel(lvl)
		log.SetFormatter(f)
	}(log.GetLevel(), log.StandardLogger().Formatter)

	InitLog(LogConfig{Level: "debug", Format: "json"})
	require.Equal(t, log.DebugLevel, log.GetLevel())
	require.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	InitLog(LogConfig{Level: "warn", Format: "text"})
	require.Equal(t, log.WarnLevel, log.GetLevel())
	require.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
}
