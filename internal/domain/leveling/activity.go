package leveling

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// ActivityType identifies what earned the XP.
type ActivityType string

const (
	ActivityText  ActivityType = "text"
	ActivityVoice ActivityType = "voice"
)

// DefaultCooldown is the minimum gap between two grants of the same activity
// type for one user.
const DefaultCooldown = 60 * time.Second

// Valid reports whether a is a known activity type.
func (a ActivityType) Valid() bool {
	return a == ActivityText || a == ActivityVoice
}

// String implements fmt.Stringer.
func (a ActivityType) String() string {
	return string(a)
}

// ParseActivityType parses "text"/"message" and "voice"/"vc".
func ParseActivityType(s string) (ActivityType, error) {
	switch s {
	case "text", "message":
		return ActivityText, nil
	case "voice", "vc":
		return ActivityVoice, nil
	}
	return "", fmt.Errorf("unknown activity type %q", s)
}

// Base XP ranges, half-open: [min, max).
var baseXPRange = map[ActivityType][2]int{
	ActivityText:  {15, 25},
	ActivityVoice: {3, 5},
}

// BaseXP draws the unmultiplied XP for one unit of activity. Unknown types
// yield 0. A nil rng uses the package-level source.
func BaseXP(activity ActivityType, rng *rand.Rand) int {
	r, ok := baseXPRange[activity]
	if !ok {
		return 0
	}
	span := r[1] - r[0]
	if rng == nil {
		return r[0] + rand.IntN(span)
	}
	return r[0] + rng.IntN(span)
}
