package bot

import (
	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
)

const (
	CommandBan        = "ban"
	CommandKick       = "kick"
	CommandSoftban    = "softban"
	CommandTempban    = "tempban"
	CommandTempmute   = "tempmute"
	CommandUnban      = "unban"
	CommandUnmute     = "unmute"
	CommandSlowmode   = "slowmode"
	CommandClear      = "clear"
	CommandWarn       = "warn"
	CommandMassban    = "massban"
	CommandPunish     = "punish"
	CommandInviteInfo = "invite-info"
	// CommandInviteInfoMessage is the message context menu entry.
	CommandInviteInfoMessage = "Invite info"

	SubWarnAdd       = "add"
	SubWarnRemove    = "remove"
	SubWarnRemoveAll = "remove-all"
	SubWarnList      = "list"

	OptionUser     = "user"
	OptionReason   = "reason"
	OptionDuration = "duration"
	OptionSeconds  = "seconds"
	OptionAmount   = "amount"
	OptionText     = "text"
	OptionPoints   = "points"
	OptionID       = "id"
	OptionTemplate = "template"
	OptionInvite   = "invite"

	OptionChannel            = "channel"
	OptionContains           = "contains"
	OptionStartsWith         = "starts"
	OptionEndsWith           = "ends"
	OptionHasEmbed           = "has_embed"
	OptionHasAttachment      = "has_attachment"
	OptionAfter              = "after"
	OptionBefore             = "before"
	OptionHasAvatar          = "has_avatar"
	OptionHasRole            = "has_role"
	OptionUsernameRegex      = "username_regex"
	OptionJoinedAfter        = "joined_after"
	OptionJoinedBefore       = "joined_before"
	OptionAccountYoungerDays = "account_younger_days"
	OptionJoinedWithinDays   = "joined_within_days"

	maxReasonLength = moderation.MaxReasonRunes
)

func perm(p int64) *int64 {
	return &p
}

func float(f float64) *float64 {
	return &f
}

func length(n int) *int {
	return &n
}

func userOption(description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        OptionUser,
		Description: description,
		Required:    required,
	}
}

func reasonOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        OptionReason,
		Description: "The reason of the action",
		Required:    required,
		MaxLength:   maxReasonLength,
	}
}

func durationOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         OptionDuration,
		Description:  "How long the punishment lasts, like 30min, 12h or 7d",
		Required:     true,
		Autocomplete: true,
	}
}

func amountOption(description string, minValue, maxValue int, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        OptionAmount,
		Description: description,
		Required:    required,
		MinValue:    float(float64(minValue)),
		MaxValue:    float64(maxValue),
	}
}

func slashCommand(name, description string, permissions int64, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
	dm := false
	return &discordgo.ApplicationCommand{
		Name:                     name,
		Description:              description,
		DefaultMemberPermissions: perm(permissions),
		DMPermission:             &dm,
		Options:                  options,
	}
}

func clearSubcommand(filter moderation.ClearFilter, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	options = append(options,
		amountOption("How many recent messages to scan", moderation.MinClearAmount, moderation.MaxClearAmount, true),
		reasonOption(false),
	)
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        string(filter),
		Description: description,
		Options:     options,
	}
}

func boolOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionBoolean, Name: name, Description: description}
}

func textOption(name, description string, minLength, maxLength int) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		MinLength:   length(minLength),
		MaxLength:   maxLength,
	}
}

func daysOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		MinValue:    float(1),
		MaxValue:    moderation.MaxMassbanDays,
	}
}

// Definitions lists the application commands registered on start.
func Definitions() []*discordgo.ApplicationCommand {
	dm := false
	return []*discordgo.ApplicationCommand{
		slashCommand(CommandBan, "Ban a user from the server", discordgo.PermissionBanMembers,
			userOption("The user to ban", true), reasonOption(false)),
		slashCommand(CommandKick, "Kick a member from the server", discordgo.PermissionKickMembers,
			userOption("The member to kick", true), reasonOption(false)),
		slashCommand(CommandSoftban, "Ban and unban a member to delete their recent messages", discordgo.PermissionBanMembers,
			userOption("The member to softban", true), reasonOption(false)),
		slashCommand(CommandTempban, "Ban a user for a limited time", discordgo.PermissionBanMembers,
			userOption("The user to ban", true), durationOption(), reasonOption(false)),
		slashCommand(CommandTempmute, "Mute a member for a limited time", discordgo.PermissionModerateMembers,
			userOption("The member to mute", true), durationOption(), reasonOption(false)),
		slashCommand(CommandUnban, "Lift the ban of a user", discordgo.PermissionBanMembers,
			userOption("The user to unban", true), reasonOption(false)),
		slashCommand(CommandUnmute, "Lift the timeout of a member", discordgo.PermissionModerateMembers,
			userOption("The member to unmute", true), reasonOption(false)),
		slashCommand(CommandSlowmode, "Set the slowmode of this channel", discordgo.PermissionManageChannels,
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        OptionSeconds,
				Description: "Seconds between messages, 0 disables the slowmode",
				Required:    true,
				MinValue:    float(0),
				MaxValue:    moderation.MaxSlowmode,
			}),
		slashCommand(CommandClear, "Delete recent messages of this channel", discordgo.PermissionManageMessages,
			clearSubcommand(moderation.ClearAll, "Delete all messages"),
			clearSubcommand(moderation.ClearContains, "Delete messages containing a text",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        OptionText,
					Description: "The text to look for",
					Required:    true,
				}),
			clearSubcommand(moderation.ClearUser, "Delete messages of a user", userOption("The author of the messages", true)),
			clearSubcommand(moderation.ClearLinks, "Delete messages containing links"),
			clearSubcommand(moderation.ClearFiles, "Delete messages with attachments"),
		),
		slashCommand(CommandWarn, "Manage the warnings of members", discordgo.PermissionModerateMembers,
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        SubWarnAdd,
				Description: "Warn a member and add points",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("The member to warn", true),
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        OptionPoints,
						Description: "The points to add",
						Required:    true,
						MinValue:    float(moderation.MinWarnPoints),
						MaxValue:    moderation.MaxWarnPoints,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        OptionReason,
						Description: "The reason of the warning",
						Required:    true,
						MaxLength:   moderation.MaxWarnReasonRunes,
					},
				},
			},
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        SubWarnRemove,
				Description: "Remove a single warning",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("The warned user", true),
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        OptionID,
						Description: "The id of the warning",
						Required:    true,
						MinValue:    float(1),
					},
				},
			},
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        SubWarnRemoveAll,
				Description: "Remove all warnings of a user",
				Options:     []*discordgo.ApplicationCommandOption{userOption("The warned user", true)},
			},
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        SubWarnList,
				Description: "List the warnings of a user",
				Options:     []*discordgo.ApplicationCommandOption{userOption("The warned user", true)},
			},
		),
		slashCommand(CommandMassban, "Ban every member matching the filters", discordgo.PermissionAdministrator,
			reasonOption(true),
			&discordgo.ApplicationCommandOption{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         OptionChannel,
				Description:  "Only consider authors of recent messages in this channel",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			},
			amountOption("How many recent messages to scan", moderation.MinMassbanAmount, moderation.MaxMassbanAmount, false),
			textOption(OptionContains, "The message contains this text", 3, 50),
			textOption(OptionStartsWith, "The message starts with this text", 3, 50),
			textOption(OptionEndsWith, "The message ends with this text", 3, 50),
			boolOption(OptionHasEmbed, "The message has an embed"),
			boolOption(OptionHasAttachment, "The message has an attachment"),
			textOption(OptionAfter, "Only messages sent after this message id", 1, 20),
			textOption(OptionBefore, "Only messages sent before this message id", 1, 20),
			boolOption(OptionHasAvatar, "The member has an avatar"),
			boolOption(OptionHasRole, "The member has a role"),
			textOption(OptionUsernameRegex, "The username matches this regex", 4, 50),
			&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: OptionJoinedAfter, Description: "Joined after this member"},
			&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: OptionJoinedBefore, Description: "Joined before this member"},
			daysOption(OptionAccountYoungerDays, "The account is younger than this many days"),
			daysOption(OptionJoinedWithinDays, "The member joined within this many days"),
		),
		slashCommand(CommandPunish, "Apply a punishment template", discordgo.PermissionModerateMembers,
			userOption("The member to punish", true),
			&discordgo.ApplicationCommandOption{
				Type:         discordgo.ApplicationCommandOptionInteger,
				Name:         OptionTemplate,
				Description:  "The punishment template",
				Required:     true,
				Autocomplete: true,
			}),
		slashCommand(CommandInviteInfo, "Show information about an invite", discordgo.PermissionManageMessages,
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        OptionInvite,
				Description: "The invite link or code",
				Required:    true,
			}),
		{
			Name:                     CommandInviteInfoMessage,
			Type:                     discordgo.MessageApplicationCommand,
			DefaultMemberPermissions: perm(discordgo.PermissionManageMessages),
			DMPermission:             &dm,
		},
	}
}
