package models

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a short random identifier for items, workers, and triggers.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// NewCallID returns an identifier for a tool call.
func NewCallID() string {
	return "tc_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
