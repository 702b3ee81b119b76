package roomstate

import "strings"

// QuickTalkRoomPrefix marks ephemeral one-to-one rooms.
const QuickTalkRoomPrefix = "quick-talk-"

// CreateQuickTalkRoom allocates a room id for a quick talk. The room itself
// comes into existence when the first side joins it.
func (s *Store) CreateQuickTalkRoom() string {
	return QuickTalkRoomPrefix + s.newID()
}

// IsQuickTalkRoom reports whether roomID was allocated by CreateQuickTalkRoom.
func IsQuickTalkRoom(roomID string) bool {
	return strings.HasPrefix(roomID, QuickTalkRoomPrefix)
}
