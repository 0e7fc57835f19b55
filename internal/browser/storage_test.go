package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageStateRoundTrip(t *testing.T) {
	state := &StorageState{
		Cookies: []StateCookie{
			{
				Name:     "X-CSRF-TOKEN",
				Value:    "abc",
				Domain:   ".apollo.io",
				Path:     "/",
				Expires:  1_900_000_000,
				HTTPOnly: true,
				Secure:   true,
				SameSite: "Lax",
			},
		},
		Origins: []StateOrigin{
			{
				Origin:       "https://app.apollo.io",
				LocalStorage: []StateEntry{{Name: "theme", Value: "dark"}},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "cookies", "storage_state.json")
	require.NoError(t, WriteStorageState(path, state))

	loaded, err := ReadStorageState(path)
	require.NoError(t, err)

	if diff := cmp.Diff(state, loaded); diff != "" {
		t.Errorf("storage state mismatch (-want +got):\n%s", diff)
	}
}

func TestReadStorageState_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, err := ReadStorageState(path)
	require.Error(t, err)
}

func TestReadLegacyCookies_Array(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apollo.json")
	data := `[{"name":"session","value":"v1","domain":".apollo.io","path":"/"}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	state, err := ReadLegacyCookies(path)
	require.NoError(t, err)
	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "session", state.Cookies[0].Name)
	assert.Empty(t, state.Origins)
}

func TestReadLegacyCookies_Wrapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apollo.json")
	data := `{"cookies":[{"name":"session","value":"v1"}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	state, err := ReadLegacyCookies(path)
	require.NoError(t, err)
	require.Len(t, state.Cookies, 1)
}

func TestSameSiteConversion(t *testing.T) {
	for _, s := range []string{"Strict", "Lax", "None"} {
		assert.Equal(t, s, sameSiteToState(sameSiteFromState(s)))
	}
	assert.Equal(t, proto.NetworkCookieSameSite(""), sameSiteFromState("unspecified"))
}

func TestLocalStorageRestoreScript(t *testing.T) {
	src, err := localStorageRestoreScript(StateOrigin{
		Origin:       "https://app.apollo.io",
		LocalStorage: []StateEntry{{Name: "theme", Value: "dark"}},
	})
	require.NoError(t, err)

	// Guards on the target origin, so it can be staged while the page
	// is still on about:blank and only fire on the Apollo document.
	assert.Contains(t, src, `window.location.origin !== "https://app.apollo.io"`)
	assert.Contains(t, src, `"name":"theme"`)
	assert.Contains(t, src, `"value":"dark"`)
	assert.Contains(t, src, "localStorage.setItem")
}

func TestFileAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	age, err := FileAge(path)
	require.NoError(t, err)
	assert.Less(t, age, time.Minute)

	_, err = FileAge(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, 1920, cfg.GetWindowWidth())
	assert.Equal(t, 1080, cfg.GetWindowHeight())
	assert.Equal(t, 60*time.Second, cfg.NavigationTimeout())
}
