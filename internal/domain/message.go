package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	framePrefix     = "[BRIDGE:"
	frameTimeLayout = "2006-01-02 15:04:05"
)

var threadCommands = []string{"/new", "--new-thread", "/newthread"}

// CleanMention strips bot mention patterns and new-thread commands from an
// inbound message. It reports whether a new-thread command was present.
func CleanMention(message string, mentionPatterns []string) (string, bool) {
	cleaned := message
	for _, pattern := range mentionPatterns {
		if pattern == "" {
			continue
		}
		cleaned = strings.ReplaceAll(cleaned, pattern, "")
	}

	newThread := false
	for _, command := range threadCommands {
		if strings.Contains(cleaned, command) {
			newThread = true
			cleaned = strings.ReplaceAll(cleaned, command, "")
		}
	}

	return strings.TrimSpace(cleaned), newThread
}

// FrameMessage prefixes a message with its conversational context so the
// chat application sees who asked, from where, and when.
func FrameMessage(message, username, channel string, at time.Time) string {
	if username == "" {
		username = "unknown"
	}
	if channel == "" {
		channel = "unknown"
	}
	return fmt.Sprintf("%s #%s | User: %s | %s] %s",
		framePrefix, channel, username, at.Format(frameTimeLayout), message)
}

// AnchorMarker is the token embedded in an injected payload so the request
// can be located again in rendered content.
func AnchorMarker(id AnchorID) string {
	return fmt.Sprintf("[ref:%s]", id)
}

// AttachAnchor appends the anchor marker to an outbound payload.
func AttachAnchor(payload string, id AnchorID) string {
	return payload + " " + AnchorMarker(id)
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ScrubResponse removes echoes of the bridge's own injected frames (and
// the anchor marker line for the given id) from candidate response
// content. The injected request must never be mistaken for the answer.
func ScrubResponse(content string, id AnchorID) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	marker := ""
	if id != "" {
		marker = AnchorMarker(id)
	}

	kept := make([]string, 0, strings.Count(content, "\n")+1)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, " \t")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, framePrefix) || strings.HasPrefix(trimmed, "===") {
			continue
		}
		if marker != "" && strings.Contains(trimmed, marker) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(kept, "\n"), "\n\n"))
}

// IsSubstantial reports whether content clears the noise threshold: very
// short fragments are rendering noise, not a real answer.
func IsSubstantial(content string, minLength int) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || strings.HasPrefix(trimmed, framePrefix) {
		return false
	}
	return len(trimmed) >= minLength
}
