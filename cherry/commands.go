package cherry

import (
	"github.com/bwmarrin/discordgo"
)

const (
	DiscordSlashCommandPing               = "ping"
	DiscordSlashCommandDeleteChannel      = "deletechannel"
	DiscordSlashCommandCancelSchedule     = "cancelschedule"
	DiscordSlashCommandShowDeleteSchedule = "showdeleteschedule"
	DiscordSlashCommandAutoban            = "autoban"
	DiscordSlashCommandCancelAutoban      = "cancelautoban"
	DiscordSlashCommandWarn               = "warn"
	DiscordSlashCommandWarnings           = "warnings"
	DiscordSlashCommandClearWarnings      = "clearwarnings"
	DiscordSlashCommandClearWarningsZH    = "清除警告"
	DiscordSlashCommandSign               = "sign"
	DiscordSlashCommandEmoji              = "emoji"
	DiscordSlashCommandPublicity          = "貼上文宣"
	DiscordSlashCommandTicketPanel        = "新增客服單面板"
	DiscordSlashCommandAIChat             = "和希海說話"
	DiscordSlashCommandReloadResponses    = "reloadresponses"
)

func permission(p int64) *int64 {
	return &p
}

func channelOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionChannel,
		Name:        "channel",
		Description: description,
		Required:    true,
	}
}

func userOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: description,
		Required:    true,
	}
}

func violationOptionChoices() []*discordgo.ApplicationCommandOptionChoice {
	rv := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(violationChoices))
	for _, v := range violationChoices {
		rv = append(rv, &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v})
	}
	return rv
}

// commands is the static slash command table
func (c *Cherry) commands() []Command {
	return []Command{
		{
			Name:        DiscordSlashCommandPing,
			Description: "Replies with the bot latency time.",
			Handler:     c.commandPing,
		},
		{
			Name:        DiscordSlashCommandDeleteChannel,
			Description: "Sets a channel deletion time",
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("The channel to be deleted"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "date",
					Description: "The deletion date (YYYY-MM-DD)",
					Required:    true,
				},
			},
			DefaultMemberPermissions: permission(discordgo.PermissionManageChannels),
			Handler:                  c.commandDeleteChannel,
		},
		{
			Name:        DiscordSlashCommandCancelSchedule,
			Description: "Cancels a scheduled channel deletion",
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("The channel whose deletion schedule should be canceled"),
			},
			DefaultMemberPermissions: permission(discordgo.PermissionManageChannels),
			Handler:                  c.commandCancelSchedule,
		},
		{
			Name:                     DiscordSlashCommandShowDeleteSchedule,
			Description:              "Displays the scheduled deletion times for channels.",
			DefaultMemberPermissions: permission(discordgo.PermissionManageChannels),
			Handler:                  c.commandShowDeleteSchedule,
		},
		{
			Name:        DiscordSlashCommandAutoban,
			Description: "Sets a channel for automatic banning",
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("The channel where users will be automatically banned if they send messages"),
			},
			DefaultMemberPermissions: permission(discordgo.PermissionBanMembers),
			Handler:                  c.commandAutoban,
		},
		{
			Name:        DiscordSlashCommandCancelAutoban,
			Description: "Cancels AutoBan for a specific channel",
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("The channel to remove from AutoBan"),
			},
			DefaultMemberPermissions: permission(discordgo.PermissionManageChannels),
			Handler:                  c.commandCancelAutoban,
		},
		{
			Name:        DiscordSlashCommandWarn,
			Description: "Issue a warning to a violating user",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("The user to be warned"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "violation",
					Description: "Violation type",
					Required:    true,
					Choices:     violationOptionChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Reason for the warning",
					Required:    true,
				},
			},
			DefaultMemberPermissions: permission(discordgo.PermissionKickMembers),
			Handler:                  c.commandWarn,
		},
		{
			Name:        DiscordSlashCommandWarnings,
			Description: "View a user's warning records",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("The user to check warnings for"),
			},
			DefaultMemberPermissions: permission(discordgo.PermissionKickMembers),
			Handler:                  c.commandWarnings,
		},
		{
			Name:        DiscordSlashCommandClearWarnings,
			Description: "Clear the most recent warning of a user",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("The user whose warning will be cleared"),
			},
			DefaultMemberPermissions: permission(discordgo.PermissionKickMembers),
			Handler:                  c.commandClearWarnings(clearWarningsEnglish),
		},
		{
			Name:        DiscordSlashCommandClearWarningsZH,
			Description: "清除用戶最近的警告",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("要被清除警告的用戶"),
			},
			DefaultMemberPermissions: permission(discordgo.PermissionKickMembers),
			Handler:                  c.commandClearWarnings(clearWarningsChinese),
		},
		{
			Name:        DiscordSlashCommandSign,
			Description: "Sign in for the day.",
			Handler:     c.commandSign,
		},
		{
			Name:        DiscordSlashCommandEmoji,
			Description: "Download and send an emoji from any server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "emoji",
					Description: "The emoji to process",
					Required:    true,
				},
			},
			Handler: c.commandEmoji,
		},
		{
			Name:        DiscordSlashCommandPublicity,
			Description: "在目前位置貼上文宣",
			Handler:     c.commandPublicity,
		},
		{
			Name:                     DiscordSlashCommandTicketPanel,
			Description:              "開啟一個新的客服單面板在當前頻道",
			DefaultMemberPermissions: permission(discordgo.PermissionManageChannels),
			Handler:                  c.commandTicketPanel,
		},
		{
			Name:        DiscordSlashCommandAIChat,
			Description: "Start a private conversation with 聰明版希海.",
			Handler:     c.commandAIChat,
		},
		{
			Name:                     DiscordSlashCommandReloadResponses,
			Description:              "Reload auto-responses, the AI persona and the channel policy",
			DefaultMemberPermissions: permission(discordgo.PermissionManageServer),
			Handler:                  c.commandReloadResponses,
		},
	}
}

// ApplicationCommands returns the slash command definitions sent to
// discord on registration
func (c *Cherry) ApplicationCommands() []*discordgo.ApplicationCommand {
	cmds := c.commands()
	rv := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, cmd := range cmds {
		rv = append(rv, cmd.ApplicationCommand())
	}
	return rv
}

// resolvedChannelName returns the name of the channel referenced by a
// channel option, falling back to a channel mention
func resolvedChannelName(i *discordgo.InteractionCreate, channelID string) string {
	data := i.ApplicationCommandData()
	if data.Resolved != nil && data.Resolved.Channels != nil {
		if ch, ok := data.Resolved.Channels[channelID]; ok && ch != nil && ch.Name != "" {
			return ch.Name
		}
	}
	return "<#" + channelID + ">"
}
