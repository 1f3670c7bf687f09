package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/infrastructure/discord"
)

// options indexes interaction options by name.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(list []*discordgo.ApplicationCommandInteractionDataOption) options {
	res := make(options, len(list))
	for _, opt := range list {
		res[opt.Name] = opt
	}
	return res
}

func (o options) str(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	if s, ok := opt.Value.(string); ok {
		return s
	}
	return fmt.Sprint(opt.Value)
}

func (o options) integer(name string) int64 {
	opt, ok := o[name]
	if !ok {
		return 0
	}
	switch v := opt.Value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func (o options) flag(name string) *bool {
	opt, ok := o[name]
	if !ok {
		return nil
	}
	v, ok := opt.Value.(bool)
	if !ok {
		return nil
	}
	return &v
}

// id reads a snowflake option: users, channels and message ids typed as text.
func (o options) id(name string) int64 {
	return discord.ParseID(o.str(name))
}

// subcommand returns the first nested subcommand and its options.
func subcommand(list []*discordgo.ApplicationCommandInteractionDataOption) (string, options) {
	for _, opt := range list {
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
			return opt.Name, optionsOf(opt.Options)
		}
	}
	return "", options{}
}

func focused(list []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range list {
		if opt.Focused {
			return opt
		}
		if nested := focused(opt.Options); nested != nil {
			return nested
		}
	}
	return nil
}
