// Package bot turns chat events into ledger operations and renders the
// replies. It is transport neutral; internal/discord feeds it.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/NgigiN/ledgerbot/internal/chat"
	"github.com/NgigiN/ledgerbot/internal/dialogue"
	"github.com/NgigiN/ledgerbot/internal/ledger"
	"github.com/NgigiN/ledgerbot/internal/log"
	"github.com/NgigiN/ledgerbot/internal/mpesa"
	"github.com/NgigiN/ledgerbot/internal/storage"
)

const (
	defaultDeleteListSize = 10
	failureReply          = "⚠️ Something went wrong, please try again."
)

// Ledger is the read and delete side of the ledger used by the router.
type Ledger interface {
	Transactions(ctx context.Context, userID string, p ledger.Period) ([]storage.Transaction, error)
	Summarize(ctx context.Context, userID string, p ledger.Period) (ledger.Summary, error)
	PriorBalance(ctx context.Context, userID string, before ledger.Period) (float64, error)
	Recent(ctx context.Context, userID string, n int) ([]storage.Transaction, error)
	DeleteLatest(ctx context.Context, userID string) (*storage.Transaction, error)
	Delete(ctx context.Context, userID string, id uint) (*storage.Transaction, error)
}

type Config struct {
	Prefix         string
	DeleteListSize int
	Logger         *log.Logger
}

type Router struct {
	ledger         Ledger
	dialogue       *dialogue.Machine
	prefix         string
	deleteListSize int
	log            *log.Logger
}

func NewRouter(l Ledger, m *dialogue.Machine, cfg Config) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.DeleteListSize <= 0 {
		cfg.DeleteListSize = defaultDeleteListSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	return &Router{
		ledger:         l,
		dialogue:       m,
		prefix:         cfg.Prefix,
		deleteListSize: cfg.DeleteListSize,
		log:            cfg.Logger.WithComponent(log.ComponentRouter),
	}
}

// Prefix is the command prefix the router expects.
func (r *Router) Prefix() string {
	return r.prefix
}

// ParseCommand splits "!spend 12 lunch" into a Command. ok is false when the
// content does not start with the prefix or names no command.
func ParseCommand(prefix, userID, content string) (chat.Command, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return chat.Command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return chat.Command{}, false
	}
	return chat.Command{
		UserID: userID,
		Name:   strings.ToLower(fields[0]),
		Args:   fields[1:],
	}, true
}

// HandleCommand runs a named command. It always produces a reply; failures
// are logged and turned into a generic message.
func (r *Router) HandleCommand(ctx context.Context, cmd chat.Command) chat.Reply {
	r.log.DebugContext(ctx, "command received",
		log.FieldCommand, cmd.Name,
		log.FieldUserID, cmd.UserID)

	switch cmd.Name {
	case "start", "help":
		return chat.TextReply(r.usage())
	case "spend":
		return r.beginEntry(ctx, cmd, dialogue.KindSpend)
	case "save":
		return r.beginEntry(ctx, cmd, dialogue.KindSave)
	case "stats":
		return r.stats(ctx, cmd.UserID)
	case "delete":
		if len(cmd.Args) > 0 && strings.EqualFold(cmd.Args[0], "list") {
			return r.deleteList(ctx, cmd.UserID)
		}
		return r.deleteLatest(ctx, cmd.UserID)
	case "change":
		return r.dialogue.MonthMenu(cmd.UserID)
	}
	return chat.TextReply(fmt.Sprintf("Unknown command %q. Type %shelp to see what I can do.", cmd.Name, r.prefix))
}

// HandleCallback applies a tap on a choice option. Taps that no longer match
// anything produce an empty reply.
func (r *Router) HandleCallback(ctx context.Context, cb chat.Callback) chat.Reply {
	tok, err := chat.DecodeToken(cb.Data)
	if err != nil {
		return r.fail(ctx, cb.UserID, "decode callback", err)
	}

	var reply chat.Reply
	switch tok.Step {
	case chat.StepCategory, chat.StepAccount:
		reply, err = r.dialogue.Select(ctx, cb.UserID, tok)
	case chat.StepMonth:
		var p ledger.Period
		if p, err = ledger.ParsePeriod(tok.Period); err == nil {
			reply, err = r.dialogue.ChangeMonth(ctx, cb.UserID, p)
		}
	case chat.StepDelete:
		reply, err = r.deleteByID(ctx, cb.UserID, tok.ID)
	}
	if err != nil {
		return r.fail(ctx, cb.UserID, "callback "+string(tok.Step), err)
	}
	return reply
}

// HandleText looks for a pasted M-PESA receipt and starts an entry for it:
// money sent or paid becomes a spend, money received becomes a save. Other
// text is ignored.
func (r *Router) HandleText(ctx context.Context, t chat.Text) chat.Reply {
	receipt, reason, err := mpesa.ParseNote(t.Body)
	if err != nil {
		if !errors.Is(err, mpesa.ErrNotReceipt) {
			r.log.WarnContext(ctx, "malformed M-PESA receipt",
				log.FieldUserID, t.UserID,
				log.FieldError, err)
		}
		return chat.Reply{}
	}

	kind := dialogue.KindSpend
	description := fmt.Sprintf("M-PESA %s to %s", receipt.Code, receipt.Counterparty)
	if receipt.Direction == mpesa.Incoming {
		kind = dialogue.KindSave
		description = fmt.Sprintf("M-PESA %s from %s", receipt.Code, receipt.Counterparty)
	}
	if reason != "" {
		description = reason
	}

	amount := strconv.FormatFloat(receipt.Amount, 'f', 2, 64)
	reply, err := r.dialogue.BeginEntry(ctx, t.UserID, kind, amount, description)
	if err != nil {
		return r.fail(ctx, t.UserID, "begin receipt entry", err)
	}
	return reply
}

func (r *Router) beginEntry(ctx context.Context, cmd chat.Command, kind dialogue.Kind) chat.Reply {
	var amount, description string
	if len(cmd.Args) > 0 {
		amount = cmd.Args[0]
		description = strings.Join(cmd.Args[1:], " ")
	}

	reply, err := r.dialogue.BeginEntry(ctx, cmd.UserID, kind, amount, description)
	if errors.Is(err, dialogue.ErrInvalidAmount) {
		return chat.TextReply(fmt.Sprintf("❌ Usage: %s%s <amount> <description>", r.prefix, cmd.Name))
	}
	if err != nil {
		return r.fail(ctx, cmd.UserID, cmd.Name, err)
	}
	return reply
}

func (r *Router) stats(ctx context.Context, userID string) chat.Reply {
	period := r.dialogue.CurrentMonth(userID)

	txns, err := r.ledger.Transactions(ctx, userID, period)
	if err != nil {
		return r.fail(ctx, userID, "stats", err)
	}
	if len(txns) == 0 {
		return chat.TextReply(fmt.Sprintf("📊 No transactions found for %s.", period.Label()))
	}
	sum, err := r.ledger.Summarize(ctx, userID, period)
	if err != nil {
		return r.fail(ctx, userID, "stats", err)
	}
	prior, err := r.ledger.PriorBalance(ctx, userID, period)
	if err != nil {
		return r.fail(ctx, userID, "stats", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Transaction History for %s** 📊\n\n", period.Label())
	for _, tx := range txns {
		b.WriteString(formatTransaction(tx))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n💰 **Total Income:** $%.2f\n", sum.Income)
	fmt.Fprintf(&b, "📉 **Total Expenses:** $%.2f\n", sum.Expense)
	fmt.Fprintf(&b, "💵 **Net Balance:** $%.2f\n", sum.Net)
	fmt.Fprintf(&b, "🏦 **Savings before %s:** $%.2f", period.Label(), prior)
	return chat.TextReply(b.String())
}

func (r *Router) deleteLatest(ctx context.Context, userID string) chat.Reply {
	deleted, err := r.ledger.DeleteLatest(ctx, userID)
	if errors.Is(err, ledger.ErrEmptyResult) {
		return chat.TextReply("❌ No transaction found to delete.")
	}
	if err != nil {
		return r.fail(ctx, userID, "delete latest", err)
	}
	return chat.TextReply("✅ Last transaction deleted: " + formatTransaction(*deleted))
}

func (r *Router) deleteList(ctx context.Context, userID string) chat.Reply {
	txns, err := r.ledger.Recent(ctx, userID, r.deleteListSize)
	if errors.Is(err, ledger.ErrEmptyResult) {
		return chat.TextReply("❌ No transaction found to delete.")
	}
	if err != nil {
		return r.fail(ctx, userID, "delete list", err)
	}

	options := make([]chat.Option, len(txns))
	for i, tx := range txns {
		options[i] = chat.Option{
			Label: fmt.Sprintf("%s %s", tx.Period, formatTransaction(tx)),
			Token: chat.DeleteToken(tx.ID),
		}
	}
	return chat.ChoiceReply("🗑 Select a transaction to delete:", options)
}

func (r *Router) deleteByID(ctx context.Context, userID string, id uint) (chat.Reply, error) {
	deleted, err := r.ledger.Delete(ctx, userID, id)
	if errors.Is(err, ledger.ErrEmptyResult) {
		return chat.TextReply("❌ That transaction is already gone."), nil
	}
	if err != nil {
		return chat.Reply{}, err
	}
	return chat.TextReply("✅ Transaction deleted: " + formatTransaction(*deleted)), nil
}

// fail maps an error onto a reply. Stale taps are dropped silently, anything
// else is logged and reported generically.
func (r *Router) fail(ctx context.Context, userID, op string, err error) chat.Reply {
	if errors.Is(err, dialogue.ErrNoPendingEntry) || errors.Is(err, chat.ErrInvalidToken) {
		r.log.DebugContext(ctx, "ignoring selection",
			log.FieldUserID, userID,
			log.FieldCallback, op,
			log.FieldError, err)
		return chat.Reply{}
	}
	r.log.ErrorContext(ctx, "request failed",
		log.FieldUserID, userID,
		log.FieldOperation, op,
		log.FieldError, err)
	return chat.TextReply(failureReply)
}

func (r *Router) usage() string {
	p := r.prefix
	return "🤖 Welcome to Piggy Bank Bot! Here are the features:\n\n" +
		"📌 Record expenses: " + p + "spend <amount> <description>\n" +
		"💾 Record savings: " + p + "save <amount> <description>\n" +
		"📲 Paste an M-PESA confirmation SMS to record it\n" +
		"📊 View stats: " + p + "stats\n" +
		"🗑 Delete previous entry: " + p + "delete (or " + p + "delete list to pick one)\n" +
		"🔄 Change month: " + p + "change"
}

func formatTransaction(tx storage.Transaction) string {
	icon, sign := "💰", "+"
	if tx.Signed() < 0 {
		icon, sign = "📉", "-"
	}
	s := fmt.Sprintf("%s %s: %s$%.2f", icon, tx.Category, sign, math.Abs(tx.Signed()))
	if tx.Account != "" {
		s += " (" + tx.Account + ")"
	}
	if tx.Description != "" {
		s += " | " + tx.Description
	}
	return s
}
