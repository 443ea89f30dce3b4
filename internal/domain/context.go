package domain

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type ContextID string
type ContextStatus string

const (
	ContextStatusActive ContextStatus = "active"
	ContextStatusIdle   ContextStatus = "idle"
)

// Context groups the anchors of one continuous conversation. Source names
// the delivery channel that originated it (e.g. "mattermost:town-square").
type Context struct {
	ID           ContextID
	CreatedAt    time.Time
	LastActivity time.Time
	Status       ContextStatus
	Source       string
	Anchor       AnchorID
	MessageCount int
}

var contextSeq atomic.Uint64

// NewContextID prefers a random UUID but degrades to a deterministic
// time+sequence id when the host cannot supply entropy.
func NewContextID(now time.Time) ContextID {
	id, err := uuid.NewRandom()
	if err != nil {
		return ContextID(fmt.Sprintf("ctx_%d_%06d", now.UnixMilli(), contextSeq.Add(1)))
	}
	return ContextID(id.String())
}
