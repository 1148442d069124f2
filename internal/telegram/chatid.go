package telegram

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelIDPrefix starts every supergroup and channel chat id.
const ChannelIDPrefix = "-100"

// ParseChatID converts a registry channel id to the numeric chat id.
func ParseChatID(id string) (int64, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, fmt.Errorf("telegram chat id is required")
	}
	value, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat id must be numeric: %q", id)
	}
	return value, nil
}

// FormatChatID renders a numeric chat id the way the registry stores it.
func FormatChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// IsChannelID reports whether id has the channel prefix.
func IsChannelID(id string) bool {
	id = strings.TrimSpace(id)
	return len(id) > len(ChannelIDPrefix) && strings.HasPrefix(id, ChannelIDPrefix)
}
