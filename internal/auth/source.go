package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrSessionUnavailable means no usable authenticated session could be
// established. It is fatal for a run.
var ErrSessionUnavailable = errors.New("session unavailable")

// Source names where a session came from.
type Source string

const (
	SourceEnv         Source = "env"
	SourceFile        Source = "file"
	SourceCredentials Source = "credentials"
	SourceInteractive Source = "interactive"
)

// Options lists the session inputs in the order they are tried.
type Options struct {
	StorageB64  string
	StorageFile string
	Email       string
	Password    string
	LoginURL    string
	Interactive bool
}

// CanLogin reports whether credentials for a form login are present.
func (o Options) CanLogin() bool {
	return o.Email != "" && o.Password != ""
}

// Resolve loads a stored session, preferring the base64 blob over the file.
// A source that is present but unreadable is logged and skipped. When no
// stored session exists the error wraps ErrSessionUnavailable.
func Resolve(opts Options, logger *zap.Logger) (*State, Source, error) {
	logger = logger.Named("session")

	if b64 := strings.TrimSpace(opts.StorageB64); b64 != "" {
		state, err := decodeB64(b64)
		if err == nil {
			logger.Info("Using storage state from environment")
			return state, SourceEnv, nil
		}
		logger.Warn("Ignoring storage state from environment", zap.Error(err))
	}

	if opts.StorageFile != "" {
		data, err := os.ReadFile(opts.StorageFile)
		switch {
		case err == nil:
			state, perr := Parse(data)
			if perr == nil {
				logger.Info("Using storage state file", zap.String("path", opts.StorageFile))
				return state, SourceFile, nil
			}
			logger.Warn("Ignoring storage state file", zap.String("path", opts.StorageFile), zap.Error(perr))
		case !errors.Is(err, os.ErrNotExist):
			logger.Warn("Cannot read storage state file", zap.String("path", opts.StorageFile), zap.Error(err))
		}
	}

	return nil, "", fmt.Errorf("%w: no stored session", ErrSessionUnavailable)
}

func decodeB64(s string) (*State, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return Parse(data)
}

// Save writes state to path with owner-only permissions, replacing any
// previous file atomically.
func Save(path string, state *State) error {
	data, err := state.Encode()
	if err != nil {
		return fmt.Errorf("encode storage state: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write storage state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write storage state: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// EncodeFile returns the base64 form of a storage state file, suitable for
// the environment variable Resolve reads first. The file must parse.
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if _, err := Parse(data); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
