package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, setup(&buf, "v1.2.3", "warn", false))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("dropped")
	require.Empty(t, buf.String())

	log.Error().Msg("kept")
	require.Contains(t, buf.String(), `"severity":"Error"`)
	require.Contains(t, buf.String(), `"version":"v1.2.3"`)
	require.Contains(t, buf.String(), `"message":"kept"`)

	buf.Reset()
	log.Warn().Msg("careful")
	require.Contains(t, buf.String(), `"severity":"Warning"`)

	require.Error(t, setup(&buf, "v1.2.3", "loud", false))
}
