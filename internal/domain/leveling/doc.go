// Package leveling holds the experience model of the guild: the XP curves,
// per-user level records, guild settings, reward and multiplier tables, and
// the storage and platform contracts the application layer depends on.
//
// Everything here is pure or declarative. Side effects (database access,
// Discord calls) live behind the RankStore, SettingsRepository, AuditLog and
// Platform interfaces.
package leveling
