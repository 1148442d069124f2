package panel

import (
	"errors"
	"regexp"
	"strings"
)

// Callback actions carried in inline button data.
const (
	ActionCancel       = "cancel"
	ActionChannelsList = "channels_list"
	ActionAddChannel   = "add_channel"
	ActionChannel      = "channel"
	ActionAcceptAll    = "accept_all"
	ActionAcceptCount  = "accept_count"
	ActionConfirm      = "confirm"
	ActionRemove       = "remove"
)

// ErrInvalidChatID is returned for text that is not a -100 prefixed channel id.
var ErrInvalidChatID = errors.New("chat id must start with -100")

var (
	channelIDPattern = regexp.MustCompile(`^-100\d+$`)
	countPattern     = regexp.MustCompile(`^\d+$`)
)

// Callback builds button data for an action on a channel.
func Callback(action, channelID string) string {
	if channelID == "" {
		return action
	}
	return action + ":" + channelID
}

// ParseCallback splits button data into its action and channel id.
func ParseCallback(data string) (action, channelID string) {
	data = strings.TrimSpace(data)
	action, channelID, _ = strings.Cut(data, ":")
	return action, channelID
}

// ParseChannelID validates operator input naming a channel.
func ParseChannelID(text string) (string, error) {
	text = strings.TrimSpace(text)
	if !channelIDPattern.MatchString(text) {
		return "", ErrInvalidChatID
	}
	return text, nil
}

func looksLikeChannelID(text string) bool {
	return channelIDPattern.MatchString(strings.TrimSpace(text))
}

func looksLikeCount(text string) bool {
	return countPattern.MatchString(strings.TrimSpace(text))
}
