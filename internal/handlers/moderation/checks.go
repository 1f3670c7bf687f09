package moderation

import (
	"time"

	"github.com/iamwavecut/ngmod/internal/db"
)

// checkPasses reports whether member satisfies the precondition of an action entry.
func checkPasses(member *Member, check *db.Check, now time.Time) bool {
	if check == nil {
		return true
	}
	window := time.Duration(check.Days) * 24 * time.Hour
	switch check.Kind {
	case db.CheckNone, "":
		return true
	case db.CheckNoRole:
		return len(member.Roles) == 0
	case db.CheckNoAvatar:
		return !member.HasAvatar
	case db.CheckJoinDate:
		return !member.JoinedAt.IsZero() && now.Sub(member.JoinedAt) <= window
	case db.CheckAccountAge:
		return !member.CreatedAt.IsZero() && now.Sub(member.CreatedAt) <= window
	default:
		return false
	}
}

// selectAction returns the first entry of the chain whose check passes for member.
func selectAction(actions db.ActionList, member *Member, now time.Time) (db.Action, bool) {
	for _, action := range actions {
		if checkPasses(member, action.Check, now) {
			return action, true
		}
	}
	return db.Action{}, false
}

// isAffected reports whether a rule kind applies to an author in a channel.
func isAffected(cfg *db.ModerationConfig, kind db.RuleKind, author *Member, channelID, parentID int64) bool {
	rule := cfg.Rule(kind)
	if !rule.Active || len(rule.Actions) == 0 {
		return false
	}
	if cfg.ModRoles.Intersects(author.Roles) || cfg.IgnoredRoles.Intersects(author.Roles) {
		return false
	}
	if rule.WhitelistRoles.Intersects(author.Roles) {
		return false
	}
	if rule.WhitelistChannels.Contains(channelID) {
		return false
	}
	if parentID != 0 && rule.WhitelistChannels.Contains(parentID) {
		return false
	}
	return true
}
