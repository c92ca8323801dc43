package leveling

import "sort"

// NotRanked is returned by Leaderboard.RankOf for users absent from the board.
const NotRanked = -1

// LeaderboardEntry is one row of the ranked view.
type LeaderboardEntry struct {
	UserID Snowflake `json:"user_id,string"`
	XP     int       `json:"xp"`
	Level  int       `json:"level"`
}

// Leaderboard is ordered by XP descending; ties are broken by ascending user
// id so repeated reads of unchanged data agree.
type Leaderboard []LeaderboardEntry

// NewLeaderboard sorts entries into leaderboard order. An empty input yields
// the single synthetic zero entry the rank commands expect.
func NewLeaderboard(entries []LeaderboardEntry) Leaderboard {
	if len(entries) == 0 {
		return Leaderboard{{}}
	}
	lb := make(Leaderboard, len(entries))
	copy(lb, entries)
	sort.SliceStable(lb, func(i, j int) bool {
		if lb[i].XP != lb[j].XP {
			return lb[i].XP > lb[j].XP
		}
		return lb[i].UserID < lb[j].UserID
	})
	return lb
}

// RankOf returns the 1-based position of userID, or NotRanked.
func (lb Leaderboard) RankOf(userID Snowflake) int {
	for i, e := range lb {
		if e.UserID == userID {
			return i + 1
		}
	}
	return NotRanked
}

// Top returns at most n leading entries.
func (lb Leaderboard) Top(n int) Leaderboard {
	if n <= 0 || n >= len(lb) {
		return lb
	}
	return lb[:n]
}

// IsPlaceholder reports whether lb is the synthetic empty board.
func (lb Leaderboard) IsPlaceholder() bool {
	return len(lb) == 1 && lb[0] == LeaderboardEntry{}
}
