package models

import (
	"strconv"

	"github.com/Skryldev/batch-upscale/core"
)

// Tile size tokens as written in chain rules.
const (
	TileTokenEstimate = "Auto (Estimate)"
	TileTokenMaximum  = "Maximum"
	TileTokenNone     = "No Tiling"
)

// ParseTileSize maps a chain's tile token to a tiling directive.  Unknown
// tokens and sizes below one pixel fall back to the automatic estimate;
// config validation rejects an explicit zero before it gets here.
func ParseTileSize(token string) core.TileSize {
	switch token {
	case TileTokenEstimate:
		return core.TileEstimate
	case TileTokenMaximum:
		return core.TileMax
	case TileTokenNone:
		return core.TileNone
	}
	if isDecimal(token) {
		if n, err := strconv.Atoi(token); err == nil && n > 0 {
			return core.TileSize(n)
		}
	}
	return core.TileEstimate
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
