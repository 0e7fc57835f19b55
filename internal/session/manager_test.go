package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospectpipe/internal/browser"
	"prospectpipe/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	return NewManager(t.TempDir(), cfg)
}

func writeState(t *testing.T, path string, cookies int) {
	t.Helper()
	state := &browser.StorageState{}
	for i := 0; i < cookies; i++ {
		state.Cookies = append(state.Cookies, browser.StateCookie{
			Name: "c", Value: "v", Domain: ".apollo.io", Path: "/",
		})
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, browser.WriteStorageState(path, state))
}

func TestResolve_PrefersVerified(t *testing.T) {
	m := newTestManager(t)

	_, source := m.Resolve()
	assert.Equal(t, SourceNone, source)

	writeState(t, m.StatePath(StateFile), 1)
	path, source := m.Resolve()
	assert.Equal(t, SourceStandard, source)
	assert.Equal(t, m.StatePath(StateFile), path)

	writeState(t, m.StatePath(VerifiedStateFile), 1)
	path, source = m.Resolve()
	assert.Equal(t, SourceVerified, source)
	assert.Equal(t, m.StatePath(VerifiedStateFile), path)
}

func TestLoad_ConvertsLegacyCookies(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(m.Dir(), 0o700))

	legacy := []map[string]interface{}{
		{"name": "session", "value": "abc", "domain": ".apollo.io", "path": "/"},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.StatePath(LegacyCookieFile), data, 0o600))

	state, source, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, SourceLegacy, source)
	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "session", state.Cookies[0].Name)

	// Conversion persists the standard format for later loads.
	_, source = m.Resolve()
	assert.Equal(t, SourceStandard, source)
}

func TestLoad_NoFiles(t *testing.T) {
	m := newTestManager(t)
	_, source, err := m.Load()
	require.Error(t, err)
	assert.Equal(t, SourceNone, source)
}

func TestInfo_Staleness(t *testing.T) {
	m := newTestManager(t)
	writeState(t, m.StatePath(StateFile), 1)

	old := time.Now().Add(-31 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(m.StatePath(StateFile), old, old))

	info := m.Info()
	assert.Equal(t, SourceStandard, info.Source)
	for _, f := range info.Files {
		if f.Name == StateFile {
			assert.True(t, f.Exists)
			assert.True(t, f.Stale, "30-day-old state should be stale")
		}
		if f.Name == VerifiedStateFile {
			assert.False(t, f.Exists)
		}
	}
}

func TestCleanup(t *testing.T) {
	m := newTestManager(t)
	writeState(t, m.StatePath(StateFile), 1)
	writeState(t, m.StatePath(LegacyCookieFile), 1)

	// Legacy goes once a converted state exists; fresh state stays.
	removed, err := m.Cleanup(false)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, m.StatePath(LegacyCookieFile), removed[0])

	_, source := m.Resolve()
	assert.Equal(t, SourceStandard, source)

	removed, err = m.Cleanup(true)
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	_, source = m.Resolve()
	assert.Equal(t, SourceNone, source)
}

func TestMarkVerified(t *testing.T) {
	m := newTestManager(t)
	writeState(t, m.StatePath(StateFile), 2)

	require.NoError(t, m.MarkVerified())

	state, source, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, SourceVerified, source)
	assert.Len(t, state.Cookies, 2)
}

func TestWaitForStateFile_AlreadyPresent(t *testing.T) {
	m := newTestManager(t)
	writeState(t, m.StatePath(StateFile), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	path, err := m.WaitForStateFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.StatePath(StateFile), path)

	_, source := m.Resolve()
	assert.Equal(t, SourceVerified, source)
}

func TestWaitForStateFile_LandsLater(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(200 * time.Millisecond)
		writeState(t, m.StatePath(StateFile), 1)
	}()

	path, err := m.WaitForStateFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.StatePath(StateFile), path)
}

func TestRecoveryConfigs(t *testing.T) {
	m := newTestManager(t)
	base := browser.Config{Headless: true, ProfileDir: "/tmp/profile"}

	configs := m.recoveryConfigs(base)
	require.Len(t, configs, 3)
	assert.False(t, configs[0].Headless)
	assert.Equal(t, "/tmp/profile", configs[0].ProfileDir)
	assert.True(t, configs[1].Headless)
	assert.Empty(t, configs[1].ProfileDir)
	assert.False(t, configs[2].Headless)
	assert.Empty(t, configs[2].ProfileDir)
}
