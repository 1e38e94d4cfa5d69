package menu

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[site]
label = "Our site"
link = "https://example.com"

[faq]
label = "FAQ"
answer = "Pick a question"

[faq.delivery]
label = "Delivery"
answer = "We ship within 3 days"

[faq.payment]
label = "Payment"

[faq.payment.cards]
label = "Cards"
answer = "Visa and Mastercard"

[price]
label = "Price list"
file = "price.pdf"

[hidden]
answer = "no label, not a button"
`

func codes(nodes []*Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Code)
	}
	return out
}

func TestParse_KeepsDocumentOrder(t *testing.T) {
	m, err := Parse(sample)
	require.NoError(t, err)

	assert.Equal(t, []string{"site", "faq", "price", "hidden"}, codes(m.Root.Children))
	assert.Equal(t, []string{"site", "faq", "price"}, codes(m.Root.Buttons()))

	faq, path, err := m.Find("", "faq")
	require.NoError(t, err)
	assert.Equal(t, "faq", path)
	assert.Equal(t, []string{"delivery", "payment"}, codes(faq.Children))
}

func TestNode_Mode(t *testing.T) {
	m, err := Parse(sample)
	require.NoError(t, err)

	tests := []struct {
		path, code string
		want       Mode
	}{
		{"", "site", ModeLink},
		{"", "faq", ModeMenu},
		{"", "price", ModeFile},
		{"faq", "delivery", ModeAnswer},
		{"faq", "payment", ModeMenu},
		{"", "hidden", ModeAnswer},
	}
	for _, tt := range tests {
		node, _, err := m.Find(tt.path, tt.code)
		require.NoError(t, err)
		assert.Equal(t, tt.want, node.Mode(), "%s.%s", tt.path, tt.code)
	}

	// Link wins over everything else
	n := &Node{Link: "https://x", File: "a.pdf", Answer: "a"}
	assert.Equal(t, ModeLink, n.Mode())
	assert.Equal(t, ModeNone, (&Node{}).Mode())
}

func TestParse_SubTableBeforeParent(t *testing.T) {
	m, err := Parse(`
[a.b]
label = "B"
answer = "b"

[a]
label = "A"
`)
	require.NoError(t, err)

	a, _, err := m.Find("", "a")
	require.NoError(t, err)
	assert.Equal(t, "A", a.Label)
	assert.Equal(t, ModeMenu, a.Mode())
}

func TestParse_RejectsBadCodes(t *testing.T) {
	_, err := Parse(`["a:b"]
label = "x"`)
	assert.Error(t, err)

	long := strings.Repeat("x", MaxCallbackData)
	_, err = Parse("[" + long + "]\nlabel = \"x\"")
	assert.Error(t, err)

	_, err = Parse("not toml ===")
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	m, err := Parse(sample)
	require.NoError(t, err)

	root, path, err := m.Find("", "")
	require.NoError(t, err)
	assert.Same(t, m.Root, root)
	assert.Empty(t, path)

	cards, path, err := m.Find("faq.payment", "cards")
	require.NoError(t, err)
	assert.Equal(t, "faq.payment.cards", path)
	assert.Equal(t, "Visa and Mastercard", cards.Answer)

	_, _, err = m.Find("faq", "nope")
	assert.ErrorIs(t, err, ErrUnknownButton)
	_, _, err = m.Find("nope.deeper", "x")
	assert.ErrorIs(t, err, ErrUnknownButton)
}

func TestKeyboard(t *testing.T) {
	m, err := Parse(sample)
	require.NoError(t, err)

	root := m.Keyboard(m.Root, "")
	assert.Equal(t, [][]models.InlineKeyboardButton{
		{{Text: "Our site", URL: "https://example.com"}},
		{{Text: "FAQ", CallbackData: "m::faq"}},
		{{Text: "Price list", CallbackData: "m::price"}},
	}, root.InlineKeyboard)

	faq, path, err := m.Find("", "faq")
	require.NoError(t, err)
	kb := m.Keyboard(faq, path)
	assert.Equal(t, [][]models.InlineKeyboardButton{
		{{Text: "Delivery", CallbackData: "m:faq:delivery"}},
		{{Text: "Payment", CallbackData: "m:faq:payment"}},
		{{Text: "🏠", CallbackData: "m::"}},
	}, kb.InlineKeyboard)

	payment, path, err := m.Find("faq", "payment")
	require.NoError(t, err)
	kb = m.Keyboard(payment, path)
	assert.Equal(t, [][]models.InlineKeyboardButton{
		{{Text: "Cards", CallbackData: "m:faq.payment:cards"}},
		{{Text: "🏠", CallbackData: "m::"}, {Text: "←", CallbackData: "m::faq"}},
	}, kb.InlineKeyboard)
}

func TestCallbackCodec(t *testing.T) {
	path, code, ok := DecodeCallback(EncodeCallback("faq.payment", "cards"))
	require.True(t, ok)
	assert.Equal(t, "faq.payment", path)
	assert.Equal(t, "cards", code)

	path, code, ok = DecodeCallback("m::")
	require.True(t, ok)
	assert.Empty(t, path)
	assert.Empty(t, code)

	_, _, ok = DecodeCallback("admin:broadcast")
	assert.False(t, ok)
	_, _, ok = DecodeCallback("m:nocolon")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "menu.toml"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "menu.toml"), []byte(sample), 0o644))
	m, err := Load(filepath.Join(dir, "menu.toml"))
	require.NoError(t, err)

	price, _, err := m.Find("", "price")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "price.pdf"), m.FilePath(price))
}
