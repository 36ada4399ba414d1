package logutil

import (
	"github.com/rs/zerolog"
)

// LevelSampler only lets events at or above Level through. The MCP binary
// uses it to keep stderr quiet while stdout carries protocol messages.
type LevelSampler struct {
	Level zerolog.Level
}

func (l LevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}
