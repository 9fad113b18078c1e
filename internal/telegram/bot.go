package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-hclog"

	"shopping-lists/internal/config"
	"shopping-lists/internal/metrics"
	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

// HealthFunc produces the report sent for /health.
type HealthFunc func(ctx context.Context) metrics.Report

// Bot lets allow-listed Telegram users read and extend their shopping lists.
type Bot struct {
	api    *tgbotapi.BotAPI
	store  storage.Storage
	cfg    *config.Config
	health HealthFunc
	logger hclog.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, store storage.Storage, health HealthFunc, logger hclog.Logger) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	logger.Info("authorized on account", "account", bot.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook for %s: %w", webhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	logger.Info("webhook set", "response", resp.Description)

	return &Bot{
		api:    bot,
		store:  store,
		cfg:    cfg,
		health: health,
		logger: logger,
	}, nil
}

// RegisterHandlers registers the webhook handler on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", b.handleWebhook)
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.logger.Warn("error parsing update", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		return
	}

	username, ok := b.cfg.TelegramUsers[update.Message.From.ID]
	if !ok {
		b.logger.Warn("unauthorized access attempt", "telegram_id", update.Message.From.ID, "handle", update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message, username)
}

func (b *Bot) processMessage(msg *tgbotapi.Message, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	text := b.respond(ctx, username, msg.From.ID == b.cfg.TelegramAdminID, msg.Command(), msg.CommandArguments())

	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(reply); err != nil {
		b.logger.Error("failed to send reply", "chat", msg.Chat.ID, "error", err)
	}
}

// respond runs one command for the account named username and returns the
// Markdown reply.
func (b *Bot) respond(ctx context.Context, username string, isAdmin bool, command, args string) string {
	if command == "health" {
		if !isAdmin {
			return "⛔ *Access Denied*: Admin only."
		}
		return formatHealth(b.health(ctx))
	}

	user, err := b.store.GetUserByUsername(ctx, username)
	if err != nil {
		return b.failure(err)
	}
	if user == nil {
		return fmt.Sprintf("❌ No account named *%s*. Register on the website first.", escape(username))
	}

	switch command {
	case "lists":
		lists, err := b.store.GetLists(ctx, user.ID)
		if err != nil {
			return b.failure(err)
		}
		return formatLists(lists)
	case "items":
		list, errText := b.ownedList(ctx, user, args)
		if errText != "" {
			return errText
		}
		items, err := b.store.GetItems(ctx, list.ID)
		if err != nil {
			return b.failure(err)
		}
		return formatItems(*list, items)
	case "newlist":
		nl, err := parseNewList(args, time.Now())
		if err != nil {
			return "❌ " + escape(err.Error()) + "\nUsage: `/newlist name [YYYY-MM-DD]`"
		}
		list, err := b.store.CreateList(ctx, user.ID, nl)
		if err != nil {
			return b.failure(err)
		}
		return fmt.Sprintf("✅ Created list *%s* (#%d).", escape(list.Name), list.ID)
	case "add":
		listArg, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
		list, errText := b.ownedList(ctx, user, listArg)
		if errText != "" {
			return errText
		}
		ni, err := parseNewItem(rest)
		if err != nil {
			return "❌ " + escape(err.Error()) + "\nUsage: `/add listId quantity price name`"
		}
		item, err := b.store.CreateItem(ctx, list.ID, ni)
		if err != nil {
			return b.failure(err)
		}
		return fmt.Sprintf("✅ Added %d × *%s* to *%s*.", item.Quantity, escape(item.Name), escape(list.Name))
	default:
		return helpText
	}
}

const helpText = "🛒 *Shopping Lists*\n\n" +
	"`/lists` show your lists\n" +
	"`/items id` show a list's items and total\n" +
	"`/newlist name [YYYY-MM-DD]` create a list\n" +
	"`/add listId quantity price name` add an item"

func (b *Bot) ownedList(ctx context.Context, user *shopping.User, arg string) (*shopping.ShoppingList, string) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return nil, "❌ Give a list number, e.g. `/items 1`."
	}
	list, err := b.store.GetList(ctx, id)
	if err != nil {
		return nil, b.failure(err)
	}
	if list == nil || list.UserID != user.ID {
		return nil, fmt.Sprintf("❌ List #%d not found.", id)
	}
	return list, ""
}

func (b *Bot) failure(err error) string {
	var verr *shopping.ValidationError
	if errors.As(err, &verr) {
		return "❌ " + escape(verr.Error())
	}
	b.logger.Error("bot command failed", "error", err)
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	return fmt.Sprintf("❌ *Error:*\n```\n%v\n```", safeErr)
}

func parseNewList(args string, now time.Time) (shopping.NewList, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return shopping.NewList{}, errors.New("a list needs a name")
	}
	date := shopping.DateOf(now)
	if last := fields[len(fields)-1]; len(fields) > 1 {
		if d, err := shopping.ParseDate(last); err == nil {
			date = d
			fields = fields[:len(fields)-1]
		}
	}
	return shopping.NewList{Name: strings.Join(fields, " "), Date: date}, nil
}

func parseNewItem(args string) (shopping.NewItem, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return shopping.NewItem{}, errors.New("expected quantity, price and name")
	}
	qty, err := strconv.Atoi(fields[0])
	if err != nil {
		return shopping.NewItem{}, fmt.Errorf("quantity %q is not a whole number", fields[0])
	}
	price, err := strconv.ParseFloat(strings.Replace(fields[1], ",", ".", 1), 64)
	if err != nil {
		return shopping.NewItem{}, fmt.Errorf("price %q is not a number", fields[1])
	}
	return shopping.NewItem{Name: strings.Join(fields[2:], " "), Price: price, Quantity: qty}, nil
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func formatLists(lists []shopping.ShoppingList) string {
	var sb strings.Builder
	sb.WriteString("🗒 *Your Lists*\n\n")
	if len(lists) == 0 {
		sb.WriteString("_No lists yet_\n")
	}
	for _, l := range lists {
		sb.WriteString(fmt.Sprintf("• #%d *%s* (%s)\n", l.ID, escape(l.Name), l.Date))
		if l.Description != nil && *l.Description != "" {
			sb.WriteString(fmt.Sprintf("_%s_\n", escape(*l.Description)))
		}
	}
	return sb.String()
}

func formatItems(list shopping.ShoppingList, items []shopping.ListItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🛒 *%s* (%s)\n\n", escape(list.Name), list.Date))
	if len(items) == 0 {
		sb.WriteString("_No items yet_\n")
	}
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("• %d × %s @ %.2f = %.2f\n", it.Quantity, escape(it.Name), it.Price, it.Subtotal()))
	}
	sb.WriteString(fmt.Sprintf("\n💰 *Total:* %.2f", shopping.Total(items)))
	return sb.String()
}

func formatHealth(r metrics.Report) string {
	var sb strings.Builder
	sb.WriteString("📊 *Health Report*\n\n")
	sb.WriteString(fmt.Sprintf("• Status: %s\n", r.Status))
	sb.WriteString(fmt.Sprintf("• Backend: %s (%s, %s)\n", r.Backend, escape(r.Store), r.StoreLatency))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", r.Uptime))

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", r.System.AllocMB, r.System.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", r.System.Goroutines))
	if r.System.DataDiskSize != "" {
		sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", r.System.DataDiskSize))
	}
	return sb.String()
}
