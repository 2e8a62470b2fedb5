package cherry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

const (
	ticketCustomIDPrefix = "ticket_"

	ticketActionClose  = "close"
	ticketActionReopen = "reopen"
	ticketActionDelete = "delete"

	ticketCreatedMessage   = "✅ 客服單已開啟!"
	ticketDuplicateMessage = "你已經開啟了這類型的 Ticket。"
	ticketInvalidAction    = "⚠️ Invalid ticket operation."
	ticketFailedMessage    = "⚠️ An error occurred during the ticket operation."
	ticketNotATicket       = "⚠️ 此頻道不是客服單。"
	ticketDeleteForbidden  = "❌ 只有客服人員可以刪除 Ticket。"
	ticketClosedMessage    = "🔒 此 Ticket 已關閉，若需重新開啟請點擊下方按鈕。"
	ticketReopenedMessage  = "🔓 Ticket 已重新開啟，可以繼續對話。"
	ticketArchivedMessage  = "📦 Ticket 紀錄已封存。🗑️ 正在刪除 Ticket…"
	ticketArchiveFailed    = "⚠️ Ticket 紀錄封存失敗，仍將刪除此 Ticket。"
	ticketDeletingMessage  = "🗑️ 正在刪除 Ticket…"
	ticketHistoryPageLimit = 1000

	permissionsSendView = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
)

// TicketCategory is the kind of support request a ticket was opened for
type TicketCategory string

const (
	TicketCategoryReport  TicketCategory = "report"
	TicketCategoryCoop    TicketCategory = "coop"
	TicketCategoryApply   TicketCategory = "apply"
	TicketCategoryRewards TicketCategory = "rewards"
	TicketCategoryOthers  TicketCategory = "others"
)

var ticketCategories = []TicketCategory{
	TicketCategoryReport,
	TicketCategoryCoop,
	TicketCategoryApply,
	TicketCategoryRewards,
	TicketCategoryOthers,
}

var ticketCategoryLabels = map[TicketCategory]string{
	TicketCategoryReport:  "舉報違規",
	TicketCategoryCoop:    "合作申請",
	TicketCategoryApply:   "應徵職務",
	TicketCategoryRewards: "獎勵／兌換申請",
	TicketCategoryOthers:  "其他問題",
}

// parseTicketCategory accepts the category tags used by panel buttons.
// 'job' is accepted as an alias of 'apply'.
func parseTicketCategory(s string) (TicketCategory, bool) {
	if s == "job" {
		return TicketCategoryApply, true
	}
	c := TicketCategory(s)
	_, ok := ticketCategoryLabels[c]
	return c, ok
}

func (c TicketCategory) Label() string {
	if label, ok := ticketCategoryLabels[c]; ok {
		return label
	}
	return "未分類"
}

type TicketState string

const (
	TicketOpen    TicketState = "open"
	TicketClosed  TicketState = "closed"
	TicketDeleted TicketState = "deleted"
)

// Ticket is the stored record of a ticket channel. Ownership and state
// live here; channel permissions are derived from it.
type Ticket struct {
	ChannelID string         `json:"channel_id" gorm:"primaryKey"`
	GuildID   string         `json:"guild_id" gorm:"index"`
	Name      string         `json:"name" gorm:"index"`
	OwnerID   string         `json:"owner_id" gorm:"index:idx_ticket_owner_category"`
	OwnerName string         `json:"owner_name"`
	Category  TicketCategory `json:"category" gorm:"type:string;index:idx_ticket_owner_category"`
	State     TicketState    `json:"state" gorm:"type:string;default:open"`
	ClosedAt  *int64         `json:"closed_at,omitempty"`
	RemovedAt *int64         `json:"removed_at,omitempty"`
	ModelUnixTime
}

func (t Ticket) openedAt() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

func (t Ticket) closedAt(now time.Time) time.Time {
	if t.ClosedAt != nil {
		return time.UnixMilli(*t.ClosedAt)
	}
	return now
}

// TicketStore persists Ticket records
type TicketStore struct {
	db DBI
}

func NewTicketStore(db DBI) *TicketStore {
	return &TicketStore{db: db}
}

// Get returns the ticket for channelID, or ErrNotFound
func (s *TicketStore) Get(ctx context.Context, channelID string) (*Ticket, error) {
	var t Ticket
	err := s.db.DB().WithContext(ctx).Where("channel_id = ?", channelID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}
	return &t, nil
}

// Live returns the non-deleted tickets for the owner and category
func (s *TicketStore) Live(ctx context.Context, ownerID string, category TicketCategory) ([]Ticket, error) {
	var rv []Ticket
	err := s.db.DB().WithContext(ctx).
		Where("owner_id = ? AND category = ? AND state <> ?", ownerID, category, TicketDeleted).
		Find(&rv).Error
	if err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}
	return rv, nil
}

// List returns tickets, optionally filtered by state, newest first
func (s *TicketStore) List(ctx context.Context, state TicketState) ([]Ticket, error) {
	q := s.db.DB().WithContext(ctx).Order("created_at desc")
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var rv []Ticket
	if err := q.Find(&rv).Error; err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}
	return rv, nil
}

func (s *TicketStore) Create(ctx context.Context, t *Ticket) error {
	if _, err := s.db.Create(ctx, t); err != nil {
		return errors.Join(ErrPersistence, err)
	}
	return nil
}

func (s *TicketStore) Save(ctx context.Context, t *Ticket) error {
	if _, err := s.db.Save(ctx, t); err != nil {
		return errors.Join(ErrPersistence, err)
	}
	return nil
}

// ticketChannelName derives the channel name for an owner and category
func ticketChannelName(username string, category TicketCategory) string {
	name := cases.Lower(language.Und).String(
		fmt.Sprintf("ticket-%s-%s", username, category),
	)
	return strings.Join(strings.Fields(name), "-")
}

// parseTicketChannelName splits a name built by ticketChannelName back
// into the (lowercased) username and category
func parseTicketChannelName(name string) (string, TicketCategory, bool) {
	rest, ok := strings.CutPrefix(name, "ticket-")
	if !ok {
		return "", "", false
	}
	idx := strings.LastIndex(rest, "-")
	if idx <= 0 {
		return "", "", false
	}
	category := TicketCategory(rest[idx+1:])
	if _, known := ticketCategoryLabels[category]; !known {
		return "", "", false
	}
	return rest[:idx], category, true
}

// TicketLifecycle opens, closes, reopens and deletes ticket channels
type TicketLifecycle struct {
	session     DiscordSessionHandler
	tickets     *TicketStore
	guild       *GuildConfig
	transcripts *TranscriptRenderer
	botUserID   func() string
	logger      *slog.Logger
	now         func() time.Time

	// serializes create, so two requests for the same owner and
	// category can't both pass the duplicate check
	createMu sync.Mutex
}

func NewTicketLifecycle(
	session DiscordSessionHandler,
	tickets *TicketStore,
	guild *GuildConfig,
	transcripts *TranscriptRenderer,
	botUserID func() string,
	logger *slog.Logger,
) *TicketLifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketLifecycle{
		session:     session,
		tickets:     tickets,
		guild:       guild,
		transcripts: transcripts,
		botUserID:   botUserID,
		logger:      logger.With(loggerNameKey, "tickets"),
		now:         time.Now,
	}
}

// Create opens a new ticket channel for the requester. DuplicateResource
// is returned if a live ticket channel with the same name exists.
func (l *TicketLifecycle) Create(
	ctx context.Context,
	guildID string,
	requester *discordgo.User,
	category TicketCategory,
) (*Ticket, error) {
	l.createMu.Lock()
	defer l.createMu.Unlock()

	name := ticketChannelName(requester.Username, category)
	logger := l.logger.With("channel_name", name, "owner_id", requester.ID)

	channels, err := l.session.GuildChannels(guildID)
	if err != nil {
		return nil, externalFailure(ticketFailedMessage, err)
	}
	live := map[string]bool{}
	for _, ch := range channels {
		live[ch.ID] = true
		if ch.Name == name {
			return nil, duplicateResource(ticketDuplicateMessage)
		}
	}

	// records whose channel was removed outside the bot no longer count
	stale, err := l.tickets.Live(ctx, requester.ID, category)
	if err != nil {
		return nil, err
	}
	for i := range stale {
		if live[stale[i].ChannelID] {
			return nil, duplicateResource(ticketDuplicateMessage)
		}
		stale[i].State = TicketDeleted
		stale[i].RemovedAt = ptr(l.now().UnixMilli())
		if err = l.tickets.Save(ctx, &stale[i]); err != nil {
			logger.ErrorContext(ctx, "error marking stale ticket deleted", tint.Err(err))
		}
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: requester.ID, Type: discordgo.PermissionOverwriteTypeMember, Allow: permissionsSendView},
	}
	if botID := l.botUserID(); botID != "" {
		overwrites = append(
			overwrites,
			&discordgo.PermissionOverwrite{
				ID:    botID,
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: permissionsSendView,
			},
		)
	}
	for _, roleID := range l.guild.SupportRoleIDs {
		overwrites = append(
			overwrites,
			&discordgo.PermissionOverwrite{
				ID:    roleID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: permissionsSendView,
			},
		)
	}

	ch, err := l.session.GuildChannelCreateComplex(
		guildID,
		discordgo.GuildChannelCreateData{
			Name:                 name,
			Type:                 discordgo.ChannelTypeGuildText,
			ParentID:             l.guild.TicketParentID,
			PermissionOverwrites: overwrites,
		},
	)
	if err != nil {
		return nil, externalFailure(ticketFailedMessage, err)
	}
	logger = logger.With("channel_id", ch.ID)

	t := &Ticket{
		ChannelID: ch.ID,
		GuildID:   guildID,
		Name:      name,
		OwnerID:   requester.ID,
		OwnerName: requester.Username,
		Category:  category,
		State:     TicketOpen,
	}
	if err = l.tickets.Create(ctx, t); err != nil {
		logger.ErrorContext(ctx, "error saving ticket, removing channel", tint.Err(err))
		if _, delErr := l.session.ChannelDelete(ch.ID); delErr != nil && !isDiscordNotFound(delErr) {
			logger.ErrorContext(ctx, "error removing unsaved ticket channel", tint.Err(delErr))
		}
		return nil, persistenceFailure(ticketFailedMessage, err)
	}

	content := fmt.Sprintf(
		"🎫 <@%s> 的 **%s** Ticket 已建立，請詳細描述您的問題。",
		requester.ID,
		category.Label(),
	)
	if mentions := l.supportMentions(); mentions != "" {
		content += "\n" + mentions
	}
	if _, err = l.session.ChannelMessageSendComplex(
		ch.ID,
		&discordgo.MessageSend{
			Content:    content,
			Components: []discordgo.MessageComponent{ticketOpenControls()},
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Users: []string{requester.ID},
				Roles: l.guild.SupportRoleIDs,
			},
		},
	); err != nil {
		logger.ErrorContext(ctx, "error sending ticket opening message", tint.Err(err))
	}
	logger.InfoContext(ctx, "ticket created", "category", category)
	return t, nil
}

// Close removes send permission from the owner and support roles, and
// hides the channel from everyone else. Closing a closed ticket
// re-applies the same permissions.
func (l *TicketLifecycle) Close(ctx context.Context, channelID string) (*Ticket, error) {
	t, err := l.ticket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	logger := l.logger.With("channel_id", channelID, "owner_id", t.OwnerID)

	var errs []error
	if err = l.session.ChannelPermissionSet(
		channelID, t.GuildID, discordgo.PermissionOverwriteTypeRole, 0, discordgo.PermissionViewChannel,
	); err != nil {
		errs = append(errs, err)
	}
	if err = l.session.ChannelPermissionSet(
		channelID,
		t.OwnerID,
		discordgo.PermissionOverwriteTypeMember,
		discordgo.PermissionViewChannel,
		discordgo.PermissionSendMessages,
	); err != nil {
		errs = append(errs, err)
	}
	for _, roleID := range l.guild.SupportRoleIDs {
		if err = l.session.ChannelPermissionSet(
			channelID,
			roleID,
			discordgo.PermissionOverwriteTypeRole,
			discordgo.PermissionViewChannel,
			discordgo.PermissionSendMessages,
		); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		logger.ErrorContext(ctx, "error updating ticket permissions", tint.Err(errors.Join(errs...)))
	}

	if t.State != TicketClosed {
		t.State = TicketClosed
		t.ClosedAt = ptr(l.now().UnixMilli())
		if err = l.tickets.Save(ctx, t); err != nil {
			logger.ErrorContext(ctx, "error saving ticket", tint.Err(err))
		}
	}
	logger.InfoContext(ctx, "ticket closed")
	return t, nil
}

// Reopen restores send and view permission for the stored owner and
// the support roles
func (l *TicketLifecycle) Reopen(ctx context.Context, channelID string) (*Ticket, error) {
	t, err := l.ticket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	logger := l.logger.With("channel_id", channelID, "owner_id", t.OwnerID)

	targets := []struct {
		id  string
		typ discordgo.PermissionOverwriteType
	}{
		{t.OwnerID, discordgo.PermissionOverwriteTypeMember},
	}
	for _, roleID := range l.guild.SupportRoleIDs {
		targets = append(
			targets, struct {
				id  string
				typ discordgo.PermissionOverwriteType
			}{roleID, discordgo.PermissionOverwriteTypeRole},
		)
	}
	for _, target := range targets {
		if err = l.session.ChannelPermissionSet(
			channelID, target.id, target.typ, permissionsSendView, 0,
		); err != nil {
			logger.ErrorContext(ctx, "error restoring permissions", "target_id", target.id, tint.Err(err))
		}
	}

	t.State = TicketOpen
	t.ClosedAt = nil
	if err = l.tickets.Save(ctx, t); err != nil {
		logger.ErrorContext(ctx, "error saving ticket", tint.Err(err))
	}
	logger.InfoContext(ctx, "ticket reopened")
	return t, nil
}

// Delete archives the channel history to the archive channel (when
// configured), then deletes the channel. Archival failures are logged and
// reported via archived=false, and never prevent deletion. confirm is
// called before the channel is deleted.
func (l *TicketLifecycle) Delete(
	ctx context.Context,
	channelID string,
	confirm func(archived bool),
) error {
	t, err := l.ticket(ctx, channelID)
	if err != nil {
		return err
	}
	logger := l.logger.With("channel_id", channelID, "owner_id", t.OwnerID)

	archived := false
	if l.guild.ArchiveChannelID != "" {
		if archiveErr := l.archive(ctx, t); archiveErr != nil {
			logger.ErrorContext(ctx, "error archiving ticket", tint.Err(archiveErr))
		} else {
			archived = true
		}
	}
	if confirm != nil {
		confirm(archived)
	}

	if _, err = l.session.ChannelDelete(channelID); err != nil && !isDiscordNotFound(err) {
		return externalFailure(ticketFailedMessage, err)
	}
	t.State = TicketDeleted
	t.RemovedAt = ptr(l.now().UnixMilli())
	if err = l.tickets.Save(ctx, t); err != nil {
		logger.ErrorContext(ctx, "error saving ticket", tint.Err(err))
	}
	logger.InfoContext(ctx, "ticket deleted", "archived", archived)
	return nil
}

func (l *TicketLifecycle) archive(ctx context.Context, t *Ticket) error {
	messages, err := l.history(ctx, t.ChannelID)
	if err != nil {
		return err
	}
	transcript := Transcript{
		ChannelID:   t.ChannelID,
		ChannelName: t.Name,
		OwnerID:     t.OwnerID,
		OwnerName:   t.OwnerName,
		Category:    t.Category,
		OpenedAt:    t.openedAt(),
		ClosedAt:    t.closedAt(l.now()),
		Messages:    transcriptMessages(messages),
	}
	files, err := l.transcripts.Render(transcript)
	if err != nil {
		return err
	}
	if _, err = l.session.ChannelMessageSendComplex(
		l.guild.ArchiveChannelID,
		&discordgo.MessageSend{
			Content: fmt.Sprintf(
				"📁 **%s** (<@%s>, %s)",
				t.Name,
				t.OwnerID,
				t.Category.Label(),
			),
			Files:           files,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	); err != nil {
		return fmt.Errorf("%w: sending transcript: %w", ErrExternalService, err)
	}
	return nil
}

// history pages backward through the channel until no messages remain
func (l *TicketLifecycle) history(ctx context.Context, channelID string) ([]*discordgo.Message, error) {
	var all []*discordgo.Message
	before := ""
	for page := 0; page < ticketHistoryPageLimit; page++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		batch, err := l.session.ChannelMessages(channelID, discordMessageFetchLimit, before, "", "")
		if err != nil {
			return all, fmt.Errorf("%w: fetching history: %w", ErrExternalService, err)
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		before = batch[len(batch)-1].ID
		if len(batch) < discordMessageFetchLimit {
			break
		}
	}
	return all, nil
}

func (l *TicketLifecycle) ticket(ctx context.Context, channelID string) (*Ticket, error) {
	t, err := l.tickets.Get(ctx, channelID)
	switch {
	case errors.Is(err, ErrNotFound):
		rebuilt, rebuildErr := l.rebuild(ctx, channelID)
		if rebuildErr != nil {
			l.logger.DebugContext(ctx, "no ticket for channel", "channel_id", channelID, tint.Err(rebuildErr))
			return nil, notFound(ticketNotATicket)
		}
		return rebuilt, nil
	case err != nil:
		return nil, err
	case t.State == TicketDeleted:
		return nil, notFound(ticketNotATicket)
	}
	return t, nil
}

// rebuild recovers the record of a ticket channel that has none, from
// the channel name and the owner's member overwrite. The owner is the
// member overwrite allowed to view the channel that isn't the bot.
func (l *TicketLifecycle) rebuild(ctx context.Context, channelID string) (*Ticket, error) {
	ch, err := l.session.Channel(channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching channel: %w", ErrExternalService, err)
	}
	username, category, ok := parseTicketChannelName(ch.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a ticket channel name", ErrNotFound, ch.Name)
	}

	botID := l.botUserID()
	var owner *discordgo.PermissionOverwrite
	for _, o := range ch.PermissionOverwrites {
		if o.Type == discordgo.PermissionOverwriteTypeMember &&
			o.ID != botID &&
			o.Allow&discordgo.PermissionViewChannel != 0 {
			owner = o
			break
		}
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: no owner overwrite on %s", ErrNotFound, ch.Name)
	}

	t := &Ticket{
		ChannelID: ch.ID,
		GuildID:   ch.GuildID,
		Name:      ch.Name,
		OwnerID:   owner.ID,
		OwnerName: username,
		Category:  category,
		State:     TicketOpen,
	}
	if owner.Deny&discordgo.PermissionSendMessages != 0 {
		t.State = TicketClosed
		t.ClosedAt = ptr(l.now().UnixMilli())
	}
	logger := l.logger.With("channel_id", ch.ID, "owner_id", owner.ID)
	if err = l.tickets.Create(ctx, t); err != nil {
		logger.ErrorContext(ctx, "error saving rebuilt ticket", tint.Err(err))
	} else {
		logger.InfoContext(ctx, "rebuilt missing ticket record", "state", t.State)
	}
	return t, nil
}

func (l *TicketLifecycle) supportMentions() string {
	mentions := make([]string, 0, len(l.guild.SupportRoleIDs))
	for _, roleID := range l.guild.SupportRoleIDs {
		mentions = append(mentions, "<@&"+roleID+">")
	}
	return strings.Join(mentions, " ")
}

// canDelete reports whether the member holds a support role or
// ManageChannels
func (l *TicketLifecycle) canDelete(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&(discordgo.PermissionManageChannels|discordgo.PermissionAdministrator) != 0 {
		return true
	}
	for _, roleID := range member.Roles {
		if l.guild.IsSupportRole(roleID) {
			return true
		}
	}
	return false
}

// HandleComponent handles a ticket_* button press. The interaction is
// acknowledged with a deferred update first; every outcome is sent as a
// follow-up.
func (l *TicketLifecycle) HandleComponent(ctx context.Context, r *Responder) {
	i := r.Interaction()
	customID := i.MessageComponentData().CustomID
	action := strings.TrimPrefix(customID, ticketCustomIDPrefix)
	logger := r.Logger().With("ticket_action", action)

	if err := r.DeferUpdate(ctx); err != nil {
		logger.ErrorContext(ctx, "error acknowledging ticket action", tint.Err(err))
	}

	err := l.dispatch(ctx, r, action)
	if err == nil {
		return
	}
	logger.ErrorContext(ctx, "ticket operation failed", tint.Err(err))
	msg := ticketFailedMessage
	var userErr *UserError
	if errors.As(err, &userErr) {
		msg = userErr.Message
	}
	if sendErr := r.Send(ctx, ReplyMessage{Content: msg, Ephemeral: true}); sendErr != nil {
		logger.ErrorContext(ctx, "error sending ticket failure", tint.Err(sendErr))
	}
}

func (l *TicketLifecycle) dispatch(ctx context.Context, r *Responder, action string) error {
	channelID := r.ChannelID()
	switch action {
	case ticketActionClose:
		if _, err := l.Close(ctx, channelID); err != nil {
			return err
		}
		return r.FollowUp(
			ctx,
			ReplyMessage{
				Content:    ticketClosedMessage,
				Components: []discordgo.MessageComponent{ticketClosedControls()},
			},
		)
	case ticketActionReopen:
		if _, err := l.Reopen(ctx, channelID); err != nil {
			return err
		}
		return r.FollowUp(ctx, ReplyMessage{Content: ticketReopenedMessage})
	case ticketActionDelete:
		if !l.canDelete(r.Member()) {
			return policyViolation(ticketDeleteForbidden)
		}
		return l.Delete(
			ctx, channelID, func(archived bool) {
				msg := ticketDeletingMessage
				switch {
				case archived:
					msg = ticketArchivedMessage
				case l.guild.ArchiveChannelID != "":
					msg = ticketArchiveFailed
				}
				if err := r.FollowUp(ctx, ReplyMessage{Content: msg, Ephemeral: true}); err != nil {
					r.Logger().ErrorContext(ctx, "error sending delete confirmation", tint.Err(err))
				}
			},
		)
	}

	category, ok := parseTicketCategory(action)
	if !ok {
		return r.FollowUp(ctx, ReplyMessage{Content: ticketInvalidAction, Ephemeral: true})
	}
	user := r.User()
	if user == nil {
		return errors.New("no user on interaction")
	}
	if _, err := l.Create(ctx, r.GuildID(), user, category); err != nil {
		return err
	}
	return r.FollowUp(ctx, ReplyMessage{Content: ticketCreatedMessage, Ephemeral: true})
}

func ticketOpenControls() discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "🔒 關閉 Ticket",
				Style:    discordgo.DangerButton,
				CustomID: ticketCustomIDPrefix + ticketActionClose,
			},
		},
	}
}

func ticketClosedControls() discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "🔓 重新開啟 Ticket",
				Style:    discordgo.SuccessButton,
				CustomID: ticketCustomIDPrefix + ticketActionReopen,
			},
			discordgo.Button{
				Label:    "🗑️ 刪除 Ticket",
				Style:    discordgo.DangerButton,
				CustomID: ticketCustomIDPrefix + ticketActionDelete,
			},
		},
	}
}

// ticketPanel is the category selection message posted by the panel
// command
func ticketPanel() ReplyMessage {
	styles := map[TicketCategory]discordgo.ButtonStyle{
		TicketCategoryReport:  discordgo.PrimaryButton,
		TicketCategoryCoop:    discordgo.SuccessButton,
		TicketCategoryApply:   discordgo.SecondaryButton,
		TicketCategoryRewards: discordgo.PrimaryButton,
		TicketCategoryOthers:  discordgo.SecondaryButton,
	}
	icons := map[TicketCategory]string{
		TicketCategoryReport:  "🛠️ ",
		TicketCategoryCoop:    "🤝 ",
		TicketCategoryApply:   "🔨 ",
		TicketCategoryRewards: "🎁⭐ ",
	}
	buttons := make([]discordgo.MessageComponent, 0, len(ticketCategories))
	for _, c := range ticketCategories {
		buttons = append(
			buttons,
			discordgo.Button{
				Label:    icons[c] + c.Label(),
				Style:    styles[c],
				CustomID: ticketCustomIDPrefix + string(c),
			},
		)
	}
	return ReplyMessage{
		Content:    "📩 請選擇您要開啟的 Ticket 類別：",
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}},
	}
}

func (*Cherry) commandTicketPanel(ctx context.Context, r *Responder) error {
	return r.Reply(ctx, ticketPanel())
}
