package cloudflare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospectpipe/internal/browser"
)

func TestStrategies(t *testing.T) {
	base := browser.DefaultConfig()
	got := Strategies(base, "/tmp/apollo_profile")
	require.Len(t, got, 3)

	assert.Equal(t, "stealth_headless", got[0].Name)
	assert.True(t, got[0].Config.Headless)
	assert.Empty(t, got[0].Config.ProfileDir)

	assert.Equal(t, "persistent_profile", got[1].Name)
	assert.Equal(t, "/tmp/apollo_profile", got[1].Config.ProfileDir)

	assert.Equal(t, "headful", got[2].Name)
	assert.False(t, got[2].Config.Headless)

	// Covert strategies get more time to clear the challenge.
	assert.Greater(t, got[0].Settle, got[1].Settle)
	assert.Greater(t, got[1].Settle, got[2].Settle)
}
