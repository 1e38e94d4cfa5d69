package menu

import "strings"

// CallbackPrefix marks callback data of user menu buttons
const CallbackPrefix = "m:"

// MaxCallbackData is the Bot API limit on callback data
const MaxCallbackData = 64

// EncodeCallback packs a button position as "m:<path>:<code>"
func EncodeCallback(path, code string) string {
	return CallbackPrefix + path + ":" + code
}

// DecodeCallback unpacks data made by EncodeCallback
func DecodeCallback(data string) (path, code string, ok bool) {
	rest, found := strings.CutPrefix(data, CallbackPrefix)
	if !found {
		return "", "", false
	}
	path, code, ok = strings.Cut(rest, ":")
	return path, code, ok
}
