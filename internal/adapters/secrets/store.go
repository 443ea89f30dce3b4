// Package secrets stores credentials the bridge needs at runtime, such
// as the Mattermost bot token. It prefers the pass password manager and
// falls back to plain files under the bridge config directory when pass
// is not installed.
package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/deskbridge/internal/ports"
)

// KeyMattermostToken is where the Mattermost bot token lives.
const KeyMattermostToken = "deskbridge/mattermost-token"

const (
	storeDirMode   = 0o700
	secretFileMode = 0o600
)

var ErrPassUnavailable = errors.New("pass command unavailable")

type runFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

// Store tries pass first for every operation. Errors other than
// cancellation fall through to the file backend.
type Store struct {
	run      runFunc
	fileRoot string
	mu       sync.RWMutex
}

var _ ports.SecretStore = (*Store)(nil)

// NewStore creates a store writing file fallbacks under root.
func NewStore(root string) *Store {
	return &Store{run: runPass, fileRoot: filepath.Clean(root)}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stdout, stderr, err := s.run(ctx, "", "show", key)
	if err == nil {
		return strings.TrimRight(stdout, "\r\n"), nil
	}
	if skipFallback(err) {
		return "", passError("get", key, err, stderr)
	}

	value, fileErr := s.fileGet(key)
	if fileErr == nil {
		return value, nil
	}

	return "", fmt.Errorf("%w; file fallback: %w", passError("get", key, err, stderr), fileErr)
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, stderr, err := s.run(ctx, value+"\n", "insert", "-m", "-f", key)
	if err == nil {
		return nil
	}
	if skipFallback(err) {
		return passError("put", key, err, stderr)
	}

	if fileErr := s.filePut(key, value); fileErr != nil {
		return fmt.Errorf("%w; file fallback: %w", passError("put", key, err, stderr), fileErr)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, stderr, err := s.run(ctx, "", "rm", "-f", key)
	if err != nil && skipFallback(err) {
		return passError("delete", key, err, stderr)
	}

	// Remove the file copy even when pass succeeded, so a stale
	// fallback never shadows a deleted secret.
	if fileErr := s.fileDelete(key); fileErr != nil {
		return fileErr
	}
	if err != nil && !errors.Is(err, ErrPassUnavailable) {
		return passError("delete", key, err, stderr)
	}

	return nil
}

func (s *Store) fileGet(key string) (string, error) {
	path, err := s.pathForKey(key)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("secret %q not found: %w", key, err)
		}
		return "", fmt.Errorf("read secret %q: %w", key, err)
	}

	return string(data), nil
}

func (s *Store) filePut(key string, value string) error {
	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), storeDirMode); err != nil {
		return fmt.Errorf("create secret directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(value), secretFileMode); err != nil {
		return fmt.Errorf("write secret %q: %w", key, err)
	}

	return nil
}

func (s *Store) fileDelete(key string) error {
	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete secret %q: %w", key, err)
	}

	return nil
}

func (s *Store) pathForKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("secret key is empty")
	}

	cleaned := filepath.Clean(trimmed)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") || cleaned == "." {
		return "", fmt.Errorf("invalid secret key %q", key)
	}

	return filepath.Join(s.fileRoot, cleaned), nil
}

func skipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func runPass(ctx context.Context, input string, args ...string) (string, string, error) {
	path, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrPassUnavailable
		}
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func passError(op string, key string, err error, stderr string) error {
	if stderr == "" {
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	}

	return fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
}
