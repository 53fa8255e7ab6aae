package correct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const opening = `Show images with https://dashing-demo.netlify.app/ whenever the scene changes.
Files are .avif
background
smile, angry
キャラ
![example](https://dashing-demo.netlify.app/background.avif)`

func TestParseRule(t *testing.T) {
	rule, ok := ParseRule(opening)
	require.True(t, ok)
	assert.Equal(t, "https://dashing-demo.netlify.app/", rule.BaseURL)
	assert.Equal(t, []string{".avif"}, rule.Extensions)
	assert.Equal(t, []string{"background", "smile", "angry", "キャラ"}, rule.Keywords)
}

func TestParseRuleNeedsBaseURLAndKeywords(t *testing.T) {
	_, ok := ParseRule("background\nsmile")
	assert.False(t, ok)

	_, ok = ParseRule("https://x.vercel.app/ only a very long line without keywords")
	assert.False(t, ok)

	rule, ok := ParseRule("https://x.github.io/\nhero")
	require.True(t, ok)
	assert.Equal(t, []string{".avif", ".png"}, rule.Extensions)
}

func TestCorrectRepairsGarbledLink(t *testing.T) {
	c := ForOpeningMessage(opening)
	in := "She smiles.\nhttps://dashing-demo.netlify.app/backgrond/smlie.avif\nThe end."
	out := c.Correct(in)
	assert.Equal(t,
		"She smiles.\n"+MarkdownStart+"https://dashing-demo.netlify.app/background/smile.avif"+MarkdownEnd+"\nThe end.",
		out)
}

func TestCorrectFoldsHiragana(t *testing.T) {
	c := ForOpeningMessage(opening)
	out := c.Correct("![x](https://dashing-demo.netlify.app/きゃら.avif)")
	assert.Equal(t, MarkdownStart+"https://dashing-demo.netlify.app/キャラ.avif"+MarkdownEnd, out)
}

func TestCorrectLeavesUnrelatedTextAlone(t *testing.T) {
	c := ForOpeningMessage(opening)
	in := "Nothing to see here.\nVisit https://example.com for more."
	assert.Equal(t, in, c.Correct(in))

	in = "https://dashing-demo.netlify.app/zzzzzzzzzz.avif"
	assert.Equal(t, in, c.Correct(in))
}

func TestForOpeningMessageWithoutRule(t *testing.T) {
	assert.IsType(t, Nop{}, ForOpeningMessage(""))
	assert.IsType(t, Nop{}, ForOpeningMessage("hello there"))
	assert.Equal(t, "x", Nop{}.Correct("x"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "キャラ", normalize("きゃら"))
	assert.Equal(t, "ABC", normalize("ＡＢＣ"))
	assert.Equal(t, "bgimage", normalize("bg-image_"))
}
