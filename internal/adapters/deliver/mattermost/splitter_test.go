package mattermost

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitParagraphsEmpty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitParagraphs(""))
	assert.Nil(t, SplitParagraphs("   \n\n  "))
}

func TestSplitParagraphsPacksShortContent(t *testing.T) {
	t.Parallel()

	posts := SplitParagraphs("first paragraph\n\nsecond paragraph")
	require.Len(t, posts, 1)
	assert.Equal(t, "first paragraph\n\nsecond paragraph", posts[0])
}

func TestSplitParagraphsBreaksAtLimit(t *testing.T) {
	t.Parallel()

	a := strings.Repeat("a", 9000)
	b := strings.Repeat("b", 9000)

	posts := SplitParagraphs(a + "\n\n" + b)
	require.Len(t, posts, 2)
	assert.Equal(t, a, posts[0])
	assert.Equal(t, b, posts[1])
}

func TestSplitParagraphsOversizedParagraphSplitsAtSentences(t *testing.T) {
	t.Parallel()

	sentence := strings.Repeat("x", 400) + ". "
	paragraph := strings.TrimSpace(strings.Repeat(sentence, 50)) // ~20k chars

	posts := SplitParagraphs(paragraph)
	require.Greater(t, len(posts), 1)
	for _, post := range posts {
		assert.LessOrEqual(t, len(post), maxPostLength)
		assert.True(t, strings.HasSuffix(post, "."), "chunks end on a sentence boundary")
	}
}

func TestSplitParagraphsHardCutWithoutSentences(t *testing.T) {
	t.Parallel()

	blob := strings.Repeat("y", maxPostLength+500)

	posts := SplitParagraphs(blob)
	require.Len(t, posts, 2)
	assert.Len(t, posts[0], maxPostLength)
	assert.Len(t, posts[1], 500)
}
