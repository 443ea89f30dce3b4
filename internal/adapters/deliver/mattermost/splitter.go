package mattermost

import "strings"

// maxPostLength stays under Mattermost's 16383-character post limit
// with headroom for markdown the server may add.
const maxPostLength = 15000

// SplitParagraphs breaks a completed response into posts along blank
// lines. Paragraphs are packed greedily; a single paragraph longer
// than the post limit is split again at sentence boundaries.
func SplitParagraphs(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var posts []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			posts = append(posts, current.String())
			current.Reset()
		}
	}

	for _, paragraph := range strings.Split(content, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if len(paragraph) > maxPostLength {
			flush()
			posts = append(posts, splitLong(paragraph)...)
			continue
		}

		needed := len(paragraph)
		if current.Len() > 0 {
			needed += 2
		}
		if current.Len()+needed > maxPostLength {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return posts
}

// splitLong cuts an oversized paragraph at sentence ends, falling back
// to a hard cut when one sentence alone exceeds the limit.
func splitLong(paragraph string) []string {
	var chunks []string

	for len(paragraph) > maxPostLength {
		cut := lastSentenceEnd(paragraph[:maxPostLength])
		if cut <= 0 {
			cut = maxPostLength
		}
		chunks = append(chunks, strings.TrimSpace(paragraph[:cut]))
		paragraph = strings.TrimSpace(paragraph[cut:])
	}
	if paragraph != "" {
		chunks = append(chunks, paragraph)
	}

	return chunks
}

func lastSentenceEnd(s string) int {
	best := -1
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' {
				best = i + 1
			}
		case '\n':
			best = i + 1
		}
	}
	if best < 0 {
		return -1
	}

	return best
}
