// Package permissions evaluates Discord guild permission bits and role hierarchy.
package permissions

import "github.com/bwmarrin/discordgo"

// All holds every permission bit, including the ones discordgo.PermissionAll
// predates such as moderate members.
const All int64 = ^int64(0)

type Role struct {
	ID          int64
	Position    int
	Permissions int64
}

// Guild is the subset of guild state needed to resolve member permissions.
type Guild struct {
	ID      int64
	OwnerID int64
	Roles   map[int64]Role
}

// Base returns the guild-level permissions of a member holding roles.
// Channel overwrites are not applied.
func Base(guild *Guild, userID int64, roles []int64) int64 {
	if guild == nil {
		return 0
	}
	if userID == guild.OwnerID {
		return All
	}
	// the @everyone role shares the guild id
	perms := guild.Roles[guild.ID].Permissions
	for _, id := range roles {
		if role, ok := guild.Roles[id]; ok {
			perms |= role.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return All
	}
	return perms
}

func Has(perms, required int64) bool {
	return perms&required == required
}

func IsAdministrator(guild *Guild, userID int64, roles []int64) bool {
	return Has(Base(guild, userID, roles), discordgo.PermissionAdministrator)
}

// TopPosition is the position of the highest role held, 0 for @everyone only.
func TopPosition(guild *Guild, roles []int64) int {
	top := 0
	if guild == nil {
		return top
	}
	for _, id := range roles {
		if role, ok := guild.Roles[id]; ok && role.Position > top {
			top = role.Position
		}
	}
	return top
}

// Dominates reports whether actor may act on target: the owner always may,
// otherwise the actor's highest role must be strictly above the target's.
func Dominates(guild *Guild, actorID int64, actorRoles []int64, targetID int64, targetRoles []int64) bool {
	if guild == nil {
		return false
	}
	if targetID == guild.OwnerID {
		return false
	}
	if actorID == guild.OwnerID {
		return true
	}
	return TopPosition(guild, actorRoles) > TopPosition(guild, targetRoles)
}
