package leveling

// ══════════════════════════════════════════════════════════════════════════════
// XP CURVE
// Two growth laws coexist: a cubic closed form for thresholds (XpForLevel) and a
// quadratic per-level step consumed by LevelAtXp. Both are kept as-is because
// rank cards and admin tooling read them independently.
// ══════════════════════════════════════════════════════════════════════════════

// firstLevelThreshold is the XP needed to leave level 0.
const firstLevelThreshold = 100

// cubicThreshold evaluates 5/6·(151a + 33a² + 2a³) + 100, truncated.
// Float evaluation matches the stored values players already have.
func cubicThreshold(a int) int {
	sum := 151*a + 33*a*a + 2*a*a*a
	return int(5/6.0*float64(sum) + 100)
}

// XpForLevel returns the cumulative XP required to have reached level.
func XpForLevel(level int) int {
	if level <= 0 {
		return 0
	}
	return cubicThreshold(level - 1)
}

// XpForNextLevel evaluates the cubic with level+1 as its base.
//
// Note this is XpForLevel(level+2), not XpForLevel(level+1). Callers that want
// the next threshold should use XpForLevel(level + 1).
func XpForNextLevel(level int) int {
	return cubicThreshold(level + 1)
}

// LevelAtXp maps total XP to a level by consuming per-level steps of
// 5·l² + 50·l + 100.
func LevelAtXp(totalXp int) int {
	level := 0
	next := firstLevelThreshold
	for totalXp >= next {
		totalXp -= next
		level++
		next = levelStep(level)
	}
	return level
}

func levelStep(level int) int {
	return 5*level*level + 50*level + 100
}

// XpToFinishLevel returns XpForLevel(LevelAtXp(xp)+1) - xp.
func XpToFinishLevel(xp int) int {
	return XpForLevel(LevelAtXp(xp)+1) - xp
}

// XpUntilNextLevel is the rank card variant of XpToFinishLevel. Same formula.
func XpUntilNextLevel(xp int) int {
	return XpForLevel(LevelAtXp(xp)+1) - xp
}

// MinAndMaxXpForThisLevel returns the cubic lower and upper bounds of level.
// Level 0 spans (0, 100); negative levels collapse to (0, 0).
func MinAndMaxXpForThisLevel(level int) (minXp, maxXp int) {
	switch {
	case level == 0:
		return 0, firstLevelThreshold
	case level < 0:
		return 0, 0
	}
	return cubicThreshold(level - 1), cubicThreshold(level)
}

// Progress summarizes where a given XP total sits on the curve.
type Progress struct {
	XP         int
	Level      int
	LevelMinXP int
	LevelMaxXP int
	XPToNext   int
}

// ProgressAt builds a Progress for xp.
func ProgressAt(xp int) Progress {
	level := LevelAtXp(xp)
	minXp, maxXp := MinAndMaxXpForThisLevel(level)
	return Progress{
		XP:         xp,
		Level:      level,
		LevelMinXP: minXp,
		LevelMaxXP: maxXp,
		XPToNext:   XpUntilNextLevel(xp),
	}
}
