package leveling

import "math"

// EffectiveMultiplier folds every override whose role is held into base.
// Multiplication commutes, so iteration order does not matter.
func EffectiveMultiplier(base float64, overrides []MultiplierOverride, held []Snowflake) float64 {
	if len(overrides) == 0 || len(held) == 0 {
		return base
	}
	roles := make(map[Snowflake]struct{}, len(held))
	for _, r := range held {
		roles[r] = struct{}{}
	}
	m := base
	for _, o := range overrides {
		if _, ok := roles[o.RoleID]; ok {
			m *= o.Multiplier
		}
	}
	return m
}

// XPToGive floors multiplier × baseXP. Negative results clamp to zero so a
// misconfigured multiplier can never take XP away.
func XPToGive(multiplier float64, baseXP int) int {
	v := math.Floor(multiplier * float64(baseXP))
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return int(v)
}
