package toml

import (
	"fmt"
	"time"

	"github.com/bnema/deskbridge/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Contexts []contextSchema `toml:"contexts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported contexts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type contextSchema struct {
	ID           string `toml:"id"`
	Source       string `toml:"source,omitempty"`
	Anchor       string `toml:"anchor,omitempty"`
	Status       string `toml:"status"`
	MessageCount int    `toml:"message_count"`
	CreatedAt    string `toml:"created_at"`
	LastActivity string `toml:"last_activity"`
}

func toSchema(c domain.Context) contextSchema {
	return contextSchema{
		ID:           string(c.ID),
		Source:       c.Source,
		Anchor:       string(c.Anchor),
		Status:       string(c.Status),
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastActivity: c.LastActivity.UTC().Format(time.RFC3339Nano),
	}
}

func fromSchema(entry contextSchema) domain.Context {
	status := domain.ContextStatus(entry.Status)
	if status != domain.ContextStatusActive && status != domain.ContextStatusIdle {
		status = domain.ContextStatusIdle
	}

	return domain.Context{
		ID:           domain.ContextID(entry.ID),
		Source:       entry.Source,
		Anchor:       domain.AnchorID(entry.Anchor),
		Status:       status,
		MessageCount: entry.MessageCount,
		CreatedAt:    parseSchemaTime(entry.CreatedAt),
		LastActivity: parseSchemaTime(entry.LastActivity),
	}
}

func parseSchemaTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}

	return ts
}
