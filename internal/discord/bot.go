// Package discord connects the router to a Discord bot account. Choice
// replies are sent as rows of buttons whose custom ids carry the encoded
// choice token.
package discord

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/NgigiN/ledgerbot/internal/bot"
	"github.com/NgigiN/ledgerbot/internal/chat"
	"github.com/NgigiN/ledgerbot/internal/config"
	"github.com/NgigiN/ledgerbot/internal/log"
)

const (
	buttonsPerRow  = 5
	maxRows        = 5
	maxLabelLength = 80
	handlerTimeout = 15 * time.Second
)

// Handler is the transport-neutral side of the bot.
type Handler interface {
	Prefix() string
	HandleCommand(ctx context.Context, cmd chat.Command) chat.Reply
	HandleCallback(ctx context.Context, cb chat.Callback) chat.Reply
	HandleText(ctx context.Context, t chat.Text) chat.Reply
}

type Bot struct {
	session   *discordgo.Session
	handler   Handler
	channelID string
	connected atomic.Bool
	log       *log.Logger
}

func NewBot(cfg *config.Config, h Handler, lg *log.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	if lg == nil {
		lg = log.Nop()
	}

	b := &Bot{
		session:   session,
		handler:   h,
		channelID: cfg.DiscordChannelId,
		log:       lg.WithComponent(log.ComponentDiscord),
	}

	session.AddHandler(b.handleMessage)
	session.AddHandler(b.handleInteraction)
	session.AddHandler(func(*discordgo.Session, *discordgo.Connect) { b.connected.Store(true) })
	session.AddHandler(func(*discordgo.Session, *discordgo.Disconnect) { b.connected.Store(false) })
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return b, nil
}

// Run opens the gateway connection and holds it until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	b.log.InfoContext(ctx, "discord session open", log.FieldChannelID, b.channelID)

	<-ctx.Done()

	b.connected.Store(false)
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close Discord connection: %w", err)
	}
	b.log.Info("discord session closed")
	return nil
}

// Connected reports whether the gateway connection is up.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if !b.allowed(m.ChannelID) {
		return
	}

	ctx, cancel := b.eventContext()
	defer cancel()

	var reply chat.Reply
	if cmd, ok := bot.ParseCommand(b.handler.Prefix(), m.Author.ID, m.Content); ok {
		reply = b.handler.HandleCommand(ctx, cmd)
	} else {
		reply = b.handler.HandleText(ctx, chat.Text{UserID: m.Author.ID, Body: m.Content})
	}
	if reply.IsEmpty() {
		return
	}

	_, err := s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:    reply.Body,
		Components: components(reply.Options),
	})
	if err != nil {
		b.log.ErrorContext(ctx, "failed to send reply",
			log.FieldChannelID, m.ChannelID,
			log.FieldUserID, m.Author.ID,
			log.FieldError, err)
	}
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	if !b.allowed(i.ChannelID) {
		return
	}
	b.answer(s, i.Interaction)
}

// interactionSession is the part of *discordgo.Session used to answer a
// component interaction.
type interactionSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// answer acknowledges the tap before the router runs, since Discord drops
// interactions not acknowledged within three seconds. A non-empty reply
// follows as a new message.
func (b *Bot) answer(s interactionSession, i *discordgo.Interaction) {
	userID := interactionUser(i)
	if userID == "" {
		return
	}

	ack := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if err := s.InteractionRespond(i, ack); err != nil {
		b.log.ErrorContext(context.Background(), "failed to acknowledge interaction",
			log.FieldChannelID, i.ChannelID,
			log.FieldUserID, userID,
			log.FieldError, err)
		return
	}

	ctx, cancel := b.eventContext()
	defer cancel()

	reply := b.handler.HandleCallback(ctx, chat.Callback{
		UserID: userID,
		Data:   i.MessageComponentData().CustomID,
	})
	if reply.IsEmpty() {
		return
	}

	_, err := s.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
		Content:    reply.Body,
		Components: components(reply.Options),
	})
	if err != nil {
		b.log.ErrorContext(ctx, "failed to send interaction reply",
			log.FieldChannelID, i.ChannelID,
			log.FieldUserID, userID,
			log.FieldError, err)
	}
}

func (b *Bot) allowed(channelID string) bool {
	return b.channelID == "" || channelID == b.channelID
}

func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

// interactionUser returns the user behind a guild (Member) or DM (User)
// interaction.
func interactionUser(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// components lays options out as button rows. Discord allows five buttons per
// row and five rows, anything past that is dropped.
func components(options []chat.Option) []discordgo.MessageComponent {
	if len(options) == 0 {
		return nil
	}
	if len(options) > buttonsPerRow*maxRows {
		options = options[:buttonsPerRow*maxRows]
	}

	var rows []discordgo.MessageComponent
	for start := 0; start < len(options); start += buttonsPerRow {
		end := min(start+buttonsPerRow, len(options))
		row := discordgo.ActionsRow{}
		for _, opt := range options[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    truncate(opt.Label, maxLabelLength),
				Style:    buttonStyle(opt.Token.Step),
				CustomID: opt.Token.Encode(),
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func buttonStyle(step chat.Step) discordgo.ButtonStyle {
	if step == chat.StepDelete {
		return discordgo.DangerButton
	}
	return discordgo.PrimaryButton
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
