package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		raw  string
		want Locator
	}{
		{"#email", Locator{Kind: KindCSS, Value: "#email"}},
		{"css=input[name=email]", Locator{Kind: KindCSS, Value: "input[name=email]"}},
		{"text=Next", Locator{Kind: KindText, Value: "Next"}},
		{"TestID = otp-input", Locator{Kind: KindTestID, Value: "otp-input"}},
		{"label=First name", Locator{Kind: KindLabel, Value: "First name"}},
		{"xpath=//button", Locator{Kind: KindXPath, Value: "//button"}},
		// An attribute selector is not a kind prefix.
		{"input[type=file]", Locator{Kind: KindCSS, Value: "input[type=file]"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLocator(tt.raw))
		})
	}
}

func TestLocatorQuery(t *testing.T) {
	q := ParseLocator("testid=country-select").Query()
	assert.False(t, q.XPath)
	assert.Equal(t, `[data-testid="country-select"]`, q.Expr)

	q = ParseLocator("text=Save and continue").Query()
	assert.True(t, q.XPath)
	assert.Contains(t, q.Expr, `normalize-space(.)='Save and continue'`)

	q = ParseLocator("label=Country").Query()
	assert.True(t, q.XPath)
	assert.Contains(t, q.Expr, `//label[starts-with(normalize-space(.), 'Country')]/@for`)
	assert.Contains(t, q.Expr, `@aria-label='Country'`)

	hidden := NewChain("upload", "input[type=file]").Hidden()
	assert.True(t, hidden.Locators[0].Query().AllowHidden)
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `'plain'`, xpathLiteral("plain"))
	assert.Equal(t, `"O'Brien"`, xpathLiteral("O'Brien"))
	assert.Equal(t, `concat('say "hi" to ', "'", 'Bob', "'")`, xpathLiteral(`say "hi" to 'Bob'`))
}

func TestChain(t *testing.T) {
	c := NewChain("next", "text=Next", "", "  ", "#next")
	assert.Len(t, c.Locators, 2)
	assert.False(t, c.Empty())
	assert.Equal(t, "next[text=Next, css=#next]", c.String())

	extended := c.With("text=Continue")
	assert.Len(t, extended.Locators, 3)
	assert.Len(t, c.Locators, 2, "With must not mutate the receiver")

	assert.True(t, NewChain("none").Empty())
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "save and continue", normalizeText("  Save\n  and   Continue "))
}
