package authcore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/teemow/toolbridge/internal/logging"
)

const (
	credentialFileMode = 0600
	credentialDirMode  = 0700

	// EnvCredentialsDir overrides the directory credential files live in.
	EnvCredentialsDir = "TOOLBRIDGE_CREDENTIALS_DIR"
)

// DefaultCredentialPath returns the credential file path for a provider,
// honoring TOOLBRIDGE_CREDENTIALS_DIR, then XDG_CACHE_HOME, then
// ~/.cache.
func DefaultCredentialPath(provider string) (string, error) {
	if dir := os.Getenv(EnvCredentialsDir); dir != "" {
		return filepath.Join(dir, provider+".json"), nil
	}
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "toolbridge", provider+".json"), nil
}

// CredentialStore persists one provider's Credentials as a JSON file.
// Saves are atomic (temp file plus rename) so a crash mid-write never
// leaves a truncated record behind.
type CredentialStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewCredentialStore returns a store backed by the given file path.
func NewCredentialStore(path string, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the backing file path.
func (s *CredentialStore) Path() string {
	return s.path
}

// Load reads the stored record. It fails soft: a missing file, unreadable
// file, corrupt JSON, or a record that is both expired and unrefreshable
// all yield nil, pushing the caller toward a fresh login. Expired records
// that still carry a refresh token are returned so the factory can attempt
// a refresh.
func (s *CredentialStore) Load() *Credentials {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read credential file, treating as absent",
				logging.Err(err),
				slog.String("path", s.path))
		}
		return nil
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		s.logger.Warn("credential file is corrupt, treating as absent",
			logging.Err(err),
			slog.String("path", s.path))
		return nil
	}
	if creds.AccessToken == "" {
		s.logger.Warn("credential file has no access token, treating as absent",
			slog.String("path", s.path))
		return nil
	}
	if creds.Expired(s.now()) && !creds.CanRefresh() {
		s.logger.Debug("stored credentials expired with no refresh token",
			slog.String("path", s.path))
		return nil
	}
	return &creds
}

// Save writes the record atomically, creating the parent directory with
// 0700 and the file with 0600. The temp file is created in the target
// directory so the rename stays on one filesystem.
func (s *CredentialStore) Save(creds *Credentials) error {
	if creds == nil || creds.AccessToken == "" {
		return fmt.Errorf("refusing to save empty credentials")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, credentialDirMode); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(credentialFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting credential file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing credential file: %w", err)
	}
	return nil
}

// Clear removes the credential file. Removing an already-absent file is
// not an error, so Clear is safe to call repeatedly.
func (s *CredentialStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	return nil
}
