package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_SamplesEverythingInDev(t *testing.T) {
	c := DefaultConfig()
	require.Equal(t, "annex4parser", c.ServiceName)
	require.Equal(t, 1.0, c.SampleRate)
	require.True(t, c.Enabled)
}

func TestNew_DisabledIsNoOp(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, done := p.TrackOperation(context.Background(), "ingest.fetch")
	require.NotNil(t, ctx)
	done(errors.New("boom"))

	require.NoError(t, p.Shutdown(context.Background()))
}
