package application

import (
	"fmt"
	"strconv"

	"github.com/bnema/deskbridge/internal/domain"
)

// ExtractionStrategy is one read-only way of locating response content on
// the rendering surface. Strategies are idempotent and ordered by
// structural specificity: the query that anchors on the injected token
// runs first, the whole-surface text fallback last.
type ExtractionStrategy struct {
	Name  string
	Build func(anchor domain.Anchor) string
}

// DefaultStrategies returns the ordered fallback chain. The surface's DOM
// is not contractually stable, so no single query is trusted; specificity
// ordering minimizes the chance of re-matching the injected request text.
func DefaultStrategies() []ExtractionStrategy {
	return []ExtractionStrategy{
		{Name: "anchor-sibling", Build: anchorSiblingQuery},
		{Name: "last-message", Build: func(domain.Anchor) string { return lastMessageQuery }},
		{Name: "surface-text", Build: surfaceTextQuery},
	}
}

// anchorSiblingQuery finds the rendered element containing the anchor
// marker and returns the text of the message block that follows it.
func anchorSiblingQuery(anchor domain.Anchor) string {
	marker := strconv.Quote(domain.AnchorMarker(anchor.ID))
	return fmt.Sprintf(`() => {
	const marker = %s;
	const blocks = Array.from(document.querySelectorAll('[data-message-id], [data-testid*="message"], .message, article'));
	for (let i = 0; i < blocks.length; i++) {
		if ((blocks[i].innerText || '').includes(marker)) {
			for (let j = i + 1; j < blocks.length; j++) {
				const text = (blocks[j].innerText || '').trim();
				if (text && !text.includes(marker)) return text;
			}
			return '';
		}
	}
	return '';
}`, marker)
}

// lastMessageQuery returns the text of the final message container on the
// surface, whatever produced it.
const lastMessageQuery = `() => {
	const blocks = document.querySelectorAll('[data-message-id], [data-testid*="message"], .message, article');
	if (!blocks.length) return '';
	return (blocks[blocks.length - 1].innerText || '').trim();
}`

// surfaceTextQuery is the generic fallback: everything rendered after the
// last occurrence of the anchor marker.
func surfaceTextQuery(anchor domain.Anchor) string {
	marker := strconv.Quote(domain.AnchorMarker(anchor.ID))
	return fmt.Sprintf(`() => {
	const marker = %s;
	const text = document.body ? (document.body.innerText || '') : '';
	const at = text.lastIndexOf(marker);
	if (at < 0) return '';
	return text.slice(at + marker.length).trim();
}`, marker)
}

// busyQuery reports whether a generation-in-progress affordance (a stop
// button or an explicit generating state) is present and visible.
const busyQuery = `() => {
	const stop = document.querySelector('button[aria-label*="Stop"], button[title*="Stop"], [data-state="generating"]');
	return !!(stop && stop.offsetParent !== null);
}`

// inputAvailableQuery reports whether the input surface is present,
// enabled, and not marked busy.
const inputAvailableQuery = `() => {
	const input = document.querySelector('div[contenteditable="true"], textarea');
	if (!input) return false;
	if (input.disabled || input.getAttribute('aria-disabled') === 'true') return false;
	return input.offsetParent !== null;
}`

// surfaceReadyQuery is the health probe: the document must be fully
// loaded with a body to observe.
const surfaceReadyQuery = `() => document.readyState === 'complete' && !!document.body`
