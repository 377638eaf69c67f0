package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerSplitWindows(t *testing.T) {
	c := NewChunker(500, 50)
	text := strings.Repeat("a", 3000)

	chunks := c.Split(text)

	require.Len(t, chunks, 7)
	for i, chunk := range chunks[:len(chunks)-1] {
		assert.Len(t, chunk, 500, "chunk %d", i)
	}
	// Last window covers the remainder: 3000 - 6*450 = 300 runes.
	assert.Len(t, chunks[len(chunks)-1], 300)
}

func TestChunkerOverlapIsShared(t *testing.T) {
	c := NewChunker(10, 3)
	text := "abcdefghijklmnopqrst"

	chunks := c.Split(text)

	require.True(t, len(chunks) >= 2)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-3:])
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d should start with the last 3 runes of chunk %d", i, i-1)
	}
}

func TestChunkerShortInputSingleChunk(t *testing.T) {
	c := NewChunker(500, 50)

	chunks := c.Split("short transcript")

	require.Len(t, chunks, 1)
	assert.Equal(t, "short transcript", chunks[0])
}

func TestChunkerEmptyInput(t *testing.T) {
	c := NewChunker(500, 50)

	assert.Empty(t, c.Split(""))
}

func TestChunkerIsDeterministic(t *testing.T) {
	c := NewChunker(120, 20)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 40)

	first := c.Split(text)
	second := c.Split(text)

	assert.Equal(t, first, second)
}

func TestChunkerMultibyteRunesNotSplit(t *testing.T) {
	c := NewChunker(4, 1)
	text := "日本語のテキストです"

	chunks := c.Split(text)

	var rebuilt []rune
	for i, chunk := range chunks {
		runes := []rune(chunk)
		require.True(t, len(runes) <= 4, "chunk %d too long", i)
		if i == 0 {
			rebuilt = append(rebuilt, runes...)
		} else {
			rebuilt = append(rebuilt, runes[1:]...) // drop the overlapped rune
		}
	}
	assert.Equal(t, text, string(rebuilt))
}
