package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

type AnchorID string
type AnchorStatus string

const (
	AnchorStatusCreated    AnchorStatus = "created"
	AnchorStatusInjected   AnchorStatus = "injected"
	AnchorStatusResponding AnchorStatus = "responding"
	AnchorStatusStreaming  AnchorStatus = "streaming"
	AnchorStatusComplete   AnchorStatus = "complete"
	AnchorStatusFailed     AnchorStatus = "failed"
	AnchorStatusExpired    AnchorStatus = "expired"
)

// InFlight reports whether a response is currently being observed for the
// anchor. In-flight anchors are exempt from sweep eviction.
func (s AnchorStatus) InFlight() bool {
	return s == AnchorStatusResponding || s == AnchorStatusStreaming
}

func (s AnchorStatus) Terminal() bool {
	switch s {
	case AnchorStatusComplete, AnchorStatusFailed, AnchorStatusExpired:
		return true
	default:
		return false
	}
}

// Anchor correlates one injected request with its eventual response. The
// token is embedded in the injected payload and located again in rendered
// content.
type Anchor struct {
	ID           AnchorID
	CreatedAt    time.Time
	LastActivity time.Time
	Status       AnchorStatus
	ContextID    ContextID
	Metadata     map[string]string
}

const anchorPrefix = "msg"

var anchorSeq atomic.Uint64

// NewAnchorID returns a collision-resistant id of the form
// "msg_<unixMillis>_<suffix>". The embedded timestamp is recoverable with
// AnchorTimestamp.
func NewAnchorID(now time.Time) AnchorID {
	return AnchorID(fmt.Sprintf("%s_%d_%s", anchorPrefix, now.UnixMilli(), anchorSuffix()))
}

func anchorSuffix() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// Entropy is not guaranteed on every host; a process-local
		// counter still keeps ids unique for the registry lifetime.
		return fmt.Sprintf("seq%09d", anchorSeq.Add(1))
	}
	return hex.EncodeToString(buf)
}

// AnchorTimestamp recovers the creation time encoded in an anchor id.
func AnchorTimestamp(id AnchorID) (time.Time, error) {
	parts := strings.Split(string(id), "_")
	if len(parts) != 3 || parts[0] != anchorPrefix {
		return time.Time{}, fmt.Errorf("malformed anchor id %q", id)
	}

	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed anchor id %q: %w", id, err)
	}

	return time.UnixMilli(millis), nil
}
