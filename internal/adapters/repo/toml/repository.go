// Package toml persists conversation context snapshots as a TOML file
// under the user's config directory, so conversations survive a bridge
// restart. Writes are atomic: a temp file in the same directory is
// renamed over the previous snapshot.
package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/ports"
)

const (
	configName        = "config"
	configType        = "toml"
	contextsPathKey   = "contexts.path"
	contextsFileMode  = 0o600
	contextsDirMode   = 0o700
	contextsConfigDir = ".deskbridge"
	contextsFile      = "contexts.toml"
	tempFilePattern   = ".contexts-*.toml.tmp"
)

type Repository struct {
	contextsPath string
	mu           *sync.RWMutex
}

// Processes sharing one snapshot path share one lock.
var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.ContextStore = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, contextsConfigDir, contextsFile)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, contextsConfigDir))
	cfg.SetDefault(contextsPathKey, defaultPath)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	contextsPath := cfg.GetString(contextsPathKey)
	if contextsPath == "" {
		return nil, errors.New("contexts path is empty")
	}
	contextsPath, err = normalizeContextsPath(contextsPath)
	if err != nil {
		return nil, err
	}

	return &Repository{contextsPath: contextsPath, mu: lockForPath(contextsPath)}, nil
}

// Load reads every persisted context. A missing snapshot file is not an
// error; it yields an empty slice.
func (r *Repository) Load(ctx context.Context) ([]domain.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}
	file.applyDefaults()

	contexts := make([]domain.Context, 0, len(file.Contexts))
	for _, entry := range file.Contexts {
		contexts = append(contexts, fromSchema(entry))
	}

	return contexts, nil
}

// Save replaces the snapshot with the given contexts.
func (r *Repository) Save(ctx context.Context, contexts []domain.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file := fileSchema{Contexts: make([]contextSchema, 0, len(contexts))}
	for _, c := range contexts {
		file.Contexts = append(file.Contexts, toSchema(c))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.contextsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read contexts file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode contexts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.contextsPath), contextsDirMode); err != nil {
		return fmt.Errorf("create contexts directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode contexts file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.contextsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp contexts file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp contexts file: %w", err)
	}

	if err := tempFile.Chmod(contextsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp contexts file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp contexts file: %w", err)
	}

	if err := os.Rename(tempName, r.contextsPath); err != nil {
		return fmt.Errorf("replace contexts file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(r.contextsPath, contextsFileMode); err != nil {
		return fmt.Errorf("chmod contexts file: %w", err)
	}

	return nil
}

func normalizeContextsPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve contexts path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
