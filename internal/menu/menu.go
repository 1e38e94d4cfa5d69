// Package menu loads the button tree shown to users from a TOML file.
//
// Every table with a label is a button. A button opens a link, sends a file,
// opens a nested menu or answers with a text, in that order of precedence:
//
//	[faq]
//	label = "FAQ"
//	answer = "Pick a question"
//
//	[faq.delivery]
//	label = "Delivery"
//	answer = "We ship within 3 days"
//
//	[site]
//	label = "Our site"
//	link = "https://example.com"
package menu

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-telegram/bot/models"
)

// Mode is what pressing a button does
type Mode int

const (
	ModeNone Mode = iota
	ModeLink
	ModeFile
	ModeMenu
	ModeAnswer
)

// DefaultText is shown above a nested menu that has no answer of its own
const DefaultText = "👀"

// Node is a button, or the root of the tree
type Node struct {
	Code     string
	Label    string
	Link     string
	File     string
	Answer   string
	Children []*Node
}

// Mode detects what the button does
func (n *Node) Mode() Mode {
	switch {
	case n.Link != "":
		return ModeLink
	case n.File != "":
		return ModeFile
	case len(n.Buttons()) > 0:
		return ModeMenu
	case n.Answer != "":
		return ModeAnswer
	}
	return ModeNone
}

// Buttons returns the children that are buttons, in file order
func (n *Node) Buttons() []*Node {
	var buttons []*Node
	for _, c := range n.Children {
		if c.Label != "" {
			buttons = append(buttons, c)
		}
	}
	return buttons
}

// Text returns the text shown with the node's keyboard
func (n *Node) Text() string {
	if n.Answer != "" {
		return n.Answer
	}
	return DefaultText
}

func (n *Node) child(code string) *Node {
	for _, c := range n.Children {
		if c.Code == code {
			return c
		}
	}
	return nil
}

// Menu is a loaded button tree
type Menu struct {
	Root *Node
	dir  string
}

// Load reads the menu file. A missing file is reported with an error matching fs.ErrNotExist
func Load(path string) (*Menu, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// Parse builds the tree keeping the order of the document
func Parse(doc string) (*Menu, error) {
	var raw map[string]interface{}
	md, err := toml.Decode(doc, &raw)
	if err != nil {
		return nil, err
	}

	root := &Node{}
	for _, key := range md.Keys() {
		table, ok := lookup(raw, key)
		if !ok {
			continue
		}
		if err := validateKey(key); err != nil {
			return nil, err
		}

		parent := root
		for i, code := range key[:len(key)-1] {
			next := parent.child(code)
			if next == nil {
				// a sub-table defined before its parent
				t, _ := lookup(raw, key[:i+1])
				next = newNode(code, t)
				parent.Children = append(parent.Children, next)
			}
			parent = next
		}
		if parent.child(key[len(key)-1]) == nil {
			parent.Children = append(parent.Children, newNode(key[len(key)-1], table))
		}
	}
	return &Menu{Root: root}, nil
}

func newNode(code string, table map[string]interface{}) *Node {
	node := &Node{Code: code}
	node.Label, _ = table["label"].(string)
	node.Link, _ = table["link"].(string)
	node.File, _ = table["file"].(string)
	node.Answer, _ = table["answer"].(string)
	return node
}

// lookup returns the table at key, if the value there is a table
func lookup(raw map[string]interface{}, key toml.Key) (map[string]interface{}, bool) {
	current := raw
	for _, part := range key {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func validateKey(key toml.Key) error {
	for _, code := range key {
		if code == "" || strings.ContainsAny(code, ".:") {
			return fmt.Errorf("menu key %q: codes must be non-empty and contain no '.' or ':'", key.String())
		}
	}
	codes := []string(key)
	if data := EncodeCallback(strings.Join(codes[:len(codes)-1], "."), codes[len(codes)-1]); len(data) > MaxCallbackData {
		return fmt.Errorf("menu key %q is too long for a button", key.String())
	}
	return nil
}

// ErrUnknownButton is returned for callback data pointing outside the tree
var ErrUnknownButton = errors.New("unknown menu button")

// Find resolves callback data parts to a node and its full path. Empty path and
// code resolve to the root
func (m *Menu) Find(path, code string) (*Node, string, error) {
	node := m.Root
	var full []string
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			if node = node.child(part); node == nil {
				return nil, "", fmt.Errorf("%w: %s", ErrUnknownButton, path)
			}
			full = append(full, part)
		}
	}
	if code == "" {
		return node, strings.Join(full, "."), nil
	}
	if node = node.child(code); node == nil {
		return nil, "", fmt.Errorf("%w: %s.%s", ErrUnknownButton, path, code)
	}
	full = append(full, code)
	return node, strings.Join(full, "."), nil
}

// FilePath resolves a file button relative to the menu file
func (m *Menu) FilePath(n *Node) string {
	if filepath.IsAbs(n.File) {
		return n.File
	}
	return filepath.Join(m.dir, n.File)
}

// Keyboard builds the keyboard of the node found at path. Nested levels get a
// bottom row with the home button and, deeper than one level, a back button
func (m *Menu) Keyboard(node *Node, path string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	for _, btn := range node.Buttons() {
		switch btn.Mode() {
		case ModeLink:
			rows = append(rows, []models.InlineKeyboardButton{{Text: btn.Label, URL: btn.Link}})
		case ModeNone:
			continue
		default:
			rows = append(rows, []models.InlineKeyboardButton{{Text: btn.Label, CallbackData: EncodeCallback(path, btn.Code)}})
		}
	}

	if path != "" {
		nav := []models.InlineKeyboardButton{{Text: "🏠", CallbackData: EncodeCallback("", "")}}
		if parts := strings.Split(path, "."); len(parts) > 1 {
			parent := parts[:len(parts)-1]
			nav = append(nav, models.InlineKeyboardButton{
				Text:         "←",
				CallbackData: EncodeCallback(strings.Join(parent[:len(parent)-1], "."), parent[len(parent)-1]),
			})
		}
		rows = append(rows, nav)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
