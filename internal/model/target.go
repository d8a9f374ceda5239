package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidID    = errors.New("id must be a number")
	ErrIDOutOfRange = errors.New("id out of range")
)

// Target addresses either the coordinator or one peer by its 0-based index.
type Target struct {
	Coordinator bool
	Index       int
}

// CoordinatorTarget addresses the coordinator.
var CoordinatorTarget = Target{Coordinator: true, Index: -1}

// PeerTarget addresses the peer at a 0-based index.
func PeerTarget(index int) Target {
	return Target{Index: index}
}

// ParseTarget converts a user-facing ID into a Target. ID 0 is the
// coordinator, IDs 1..peers are the peers in list order.
func ParseTarget(id string, peers int) (Target, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return Target{}, fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	if n == 0 {
		return CoordinatorTarget, nil
	}
	if n < 0 || n > peers {
		return Target{}, fmt.Errorf("%d (have %d peers): %w", n, peers, ErrIDOutOfRange)
	}
	return PeerTarget(n - 1), nil
}

// DisplayID converts a 0-based peer index into its user-facing ID.
func DisplayID(index int) int {
	return index + 1
}

// String renders the target as its user-facing ID.
func (t Target) String() string {
	if t.Coordinator {
		return "0"
	}
	return strconv.Itoa(DisplayID(t.Index))
}
