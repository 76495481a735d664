package feed

import (
	"fmt"
	"strings"
)

// Mode selects how a feed is filtered and ordered.
type Mode string

// Supported modes.
const (
	ModeAll      Mode = "all"
	ModeSimilar  Mode = "similar"
	ModeTopRated Mode = "topRated"
	ModeRecent   Mode = "recent"
	ModeNearby   Mode = "nearby"
)

// ParseMode maps a user-supplied name to a Mode. Empty means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ModeAll, nil
	case "similar":
		return ModeSimilar, nil
	case "toprated", "top-rated", "high-rated":
		return ModeTopRated, nil
	case "recent", "mine":
		return ModeRecent, nil
	case "nearby":
		return ModeNearby, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}
