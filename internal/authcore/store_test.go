package authcore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *CredentialStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creds", "google.json")
	return NewCredentialStore(path, nil)
}

func TestCredentialStoreSaveLoadRoundtrip(t *testing.T) {
	store := testStore(t)

	saved := &Credentials{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Scope:        "calendar gmail",
		Identity:     &Identity{Email: "user@example.com", DisplayName: "User"},
	}
	require.NoError(t, store.Save(saved))

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, saved.AccessToken, loaded.AccessToken)
	assert.Equal(t, saved.RefreshToken, loaded.RefreshToken)
	assert.True(t, saved.ExpiresAt.Equal(loaded.ExpiresAt))
	assert.Equal(t, saved.Scope, loaded.Scope)
	require.NotNil(t, loaded.Identity)
	assert.Equal(t, "user@example.com", loaded.Identity.Email)
}

func TestCredentialStorePermissions(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(&Credentials{
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	fi, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	di, err := os.Stat(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), di.Mode().Perm())
}

func TestCredentialStoreSaveLeavesNoTempFiles(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(&Credentials{
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(store.Path()), entries[0].Name())
}

func TestCredentialStoreSaveRejectsEmpty(t *testing.T) {
	store := testStore(t)
	assert.Error(t, store.Save(nil))
	assert.Error(t, store.Save(&Credentials{}))
}

func TestCredentialStoreLoadFailsSoft(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, store *CredentialStore)
	}{
		{
			name:    "missing file",
			prepare: func(t *testing.T, store *CredentialStore) {},
		},
		{
			name: "corrupt json",
			prepare: func(t *testing.T, store *CredentialStore) {
				require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0700))
				require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0600))
			},
		},
		{
			name: "empty access token",
			prepare: func(t *testing.T, store *CredentialStore) {
				require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0700))
				require.NoError(t, os.WriteFile(store.Path(), []byte(`{"access_token":""}`), 0600))
			},
		},
		{
			name: "expired without refresh token",
			prepare: func(t *testing.T, store *CredentialStore) {
				require.NoError(t, store.Save(&Credentials{
					AccessToken: "tok",
					ExpiresAt:   time.Now().Add(-time.Hour),
				}))
			},
		},
		{
			name: "no expiry and no refresh token",
			prepare: func(t *testing.T, store *CredentialStore) {
				require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0700))
				require.NoError(t, os.WriteFile(store.Path(), []byte(`{"access_token":"tok"}`), 0600))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testStore(t)
			tt.prepare(t, store)
			assert.Nil(t, store.Load())
		})
	}
}

func TestCredentialStoreLoadReturnsExpiredButRefreshable(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(&Credentials{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}))

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, "stale", loaded.AccessToken)
	assert.True(t, loaded.Expired(time.Now()))
	assert.True(t, loaded.CanRefresh())
}

func TestCredentialStoreClearIsIdempotent(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(&Credentials{
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	require.NoError(t, store.Clear())
	assert.Nil(t, store.Load())
	require.NoError(t, store.Clear())
}

func TestCredentialsExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		expiresAt      time.Time
		expired        bool
		expiringWithin bool
	}{
		{
			name:           "no expiry recorded is treated as expired",
			expiresAt:      time.Time{},
			expired:        true,
			expiringWithin: true,
		},
		{
			name:           "past expiry",
			expiresAt:      now.Add(-time.Minute),
			expired:        true,
			expiringWithin: true,
		},
		{
			name:           "inside look-ahead window",
			expiresAt:      now.Add(2 * time.Minute),
			expired:        false,
			expiringWithin: true,
		},
		{
			name:           "outside look-ahead window",
			expiresAt:      now.Add(time.Hour),
			expired:        false,
			expiringWithin: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credentials{AccessToken: "tok", ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expired, c.Expired(now))
			assert.Equal(t, tt.expiringWithin, c.ExpiringWithin(now, 5*time.Minute))
		})
	}
}

func TestDefaultCredentialPathRespectsOverride(t *testing.T) {
	t.Setenv(EnvCredentialsDir, "/tmp/custom-creds")
	path, err := DefaultCredentialPath("slack")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/custom-creds", "slack.json"), path)
}

func TestDefaultCredentialPathUsesXDGCache(t *testing.T) {
	t.Setenv(EnvCredentialsDir, "")
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")
	path, err := DefaultCredentialPath("google")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg-cache", "toolbridge", "google.json"), path)
}
