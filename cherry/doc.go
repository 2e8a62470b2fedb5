// Package cherry implements a Discord community-management bot for a
// single guild.
//
// Cherry receives slash commands and button presses over the gateway (or
// a signed webhook endpoint), and watches guild messages for moderation,
// AI thread chat, self-introduction reactions and keyword auto-responses.
// Its state lives in a SQL database (via GORM) plus a document store,
// which is either the database, a directory of JSON files, or redis.
//
// Key components of the package include:
//
//   - Cherry: owns the lifecycle, and wires the components below together.
//   - Discord: the discord session and gateway event handlers.
//   - InteractionRouter: dispatches commands and components, applying the
//     per-command ChannelPolicy.
//   - DeletionSchedule: channel deletions scheduled for a time of day.
//   - AutoModerationGate: users banned on their next message.
//   - WarningStore: per-user warning history.
//   - TicketLifecycle: support ticket channels, from the panel button to
//     the archived transcript.
//   - AIChat: persona-driven conversations in dedicated threads.
//   - SignInBook: daily sign-ins with streaks.
//   - API: the admin HTTP API.
//
// The bot supports these commands:
//
//   - /ping, /sign, /emoji, /貼上文宣
//   - /deletechannel, /cancelschedule, /showdeleteschedule
//   - /autoban, /cancelautoban
//   - /warn, /warnings, /clearwarnings (/清除警告)
//   - /新增客服單面板: posts the ticket panel
//   - /和希海說話: opens an AI chat thread
//   - /reloadresponses: reloads the policy, responses and persona files
package cherry
