package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags gates the optional parts of the leveling pipeline. Flags are
// process-local, read once from FEATURE_* variables and adjustable at runtime.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userOverrides pin a flag for one Discord user (testing on a live guild).
	userOverrides map[uint64]map[string]bool
}

// Feature is a single toggle with an optional percentage rollout.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Users are bucketed by a hash of flag name and user id, so the same
	// user stays in or out while the percentage is unchanged.
	RolloutPercent int
}

// FeatureContext identifies who a flag is evaluated for.
type FeatureContext struct {
	UserID uint64
}

const (
	// FeatureVoiceXP runs the periodic voice award tick.
	FeatureVoiceXP = "leveling.voice_xp"

	// FeatureRestoreRoles re-grants reward roles when a member accepts the rules.
	FeatureRestoreRoles = "leveling.restore_roles"

	// FeatureLevelUpNotifications posts level-up messages.
	FeatureLevelUpNotifications = "progression.notifications"

	// FeatureLeaderboardCache serves leaderboard reads from Redis.
	FeatureLeaderboardCache = "leaderboard.cache"

	// FeatureReadAPI exposes /api/leaderboard and /api/rank.
	FeatureReadAPI = "api.read"
)

// LoadFeatureFlags builds the defaults and applies FEATURE_* overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[uint64]map[string]bool),
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	for _, f := range []Feature{
		{Name: FeatureVoiceXP, Description: "Award XP to voice participants every tick", Enabled: true, RolloutPercent: 100},
		{Name: FeatureRestoreRoles, Description: "Restore reward roles after rule acceptance", Enabled: true, RolloutPercent: 100},
		{Name: FeatureLevelUpNotifications, Description: "Post level-up messages", Enabled: true, RolloutPercent: 100},
		{Name: FeatureLeaderboardCache, Description: "Serve leaderboards from Redis", Enabled: true, RolloutPercent: 100},
		{Name: FeatureReadAPI, Description: "Expose read-only leaderboard HTTP API", Enabled: true, RolloutPercent: 100},
	} {
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment reads FEATURE_<NAME>=true|false|<percent>.
// Example: FEATURE_PROGRESSION_NOTIFICATIONS=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// "leaderboard.cache" -> "FEATURE_LEADERBOARD_CACHE"
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
}

// IsEnabled evaluates featureName for ctx. A nil ctx or zero user evaluates
// the flag globally: enabled with any rollout above zero.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.UserID != 0 {
		if overrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != 0 {
		return inRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// Enabled is IsEnabled without a user.
func (ff *FeatureFlags) Enabled(featureName string) bool {
	return ff.IsEnabled(featureName, nil)
}

// EnabledFor is IsEnabled for one user.
func (ff *FeatureFlags) EnabledFor(featureName string, userID uint64) bool {
	return ff.IsEnabled(featureName, &FeatureContext{UserID: userID})
}

func inRollout(userID uint64, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(strconv.FormatUint(userID, 10)))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride pins featureName for userID.
func (ff *FeatureFlags) SetUserOverride(userID uint64, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID uint64) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
