package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomKey names the topic for one slot. The derivation is injective: each
// component is a decimal integer behind its own prefix.
type RoomKey string

// NewRoomKey derives the room key for (episode, map, channel).
func NewRoomKey(episodeNumber int, mapID, channelID uint) RoomKey {
	return RoomKey(fmt.Sprintf("ep:%d|map:%d|ch:%d", episodeNumber, mapID, channelID))
}

// Parse splits a key back into its components.
func (k RoomKey) Parse() (episodeNumber int, mapID, channelID uint, err error) {
	parts := strings.Split(string(k), "|")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("room key %q: want 3 components", string(k))
	}
	vals := make([]int64, 3)
	for i, prefix := range []string{"ep:", "map:", "ch:"} {
		raw, ok := strings.CutPrefix(parts[i], prefix)
		if !ok {
			return 0, 0, 0, fmt.Errorf("room key %q: missing %q", string(k), prefix)
		}
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("room key %q: %w", string(k), perr)
		}
		vals[i] = n
	}
	if vals[1] < 0 || vals[2] < 0 {
		return 0, 0, 0, fmt.Errorf("room key %q: negative id", string(k))
	}
	return int(vals[0]), uint(vals[1]), uint(vals[2]), nil
}

func (k RoomKey) String() string { return string(k) }
