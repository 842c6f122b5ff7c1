package chat

import (
	"fmt"
	"strings"
)

// MarkReadPolicy decides who may clear a conversation's unread state.
type MarkReadPolicy string

const (
	// MarkReadOpen lets any authenticated connection mark any conversation read.
	MarkReadOpen MarkReadPolicy = "open"
	// MarkReadParticipants restricts mark-read to the owning client and staff.
	MarkReadParticipants MarkReadPolicy = "participants"
)

func ParseMarkReadPolicy(value string) (MarkReadPolicy, error) {
	switch MarkReadPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", MarkReadOpen:
		return MarkReadOpen, nil
	case MarkReadParticipants:
		return MarkReadParticipants, nil
	}
	return "", fmt.Errorf("unknown mark-read policy %q", value)
}
