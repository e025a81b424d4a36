package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ylchen87/PillTrack/internal/wakeup"
)

// TelegramPresenter delivers alerts as Telegram messages with an inline
// keyboard for the three actions. Telegram callback data is capped at 64
// bytes, too small for a full action token, so pending tokens are kept in
// memory keyed by fire ID and the callback carries only "act:<fireID>:<kind>".
// Alerts don't survive a restart anyway; neither do their tokens.
type TelegramPresenter struct {
	api *tgbotapi.BotAPI

	mu       sync.Mutex
	messages map[wakeup.Key]sentAlert          // last sent message per alert key
	pending  map[string]map[string]ActionToken // fireID -> action kind -> token
	fireIDs  map[wakeup.Key]string             // fireID currently presented per key
}

type sentAlert struct {
	chatID    int64
	messageID int
}

func NewTelegramPresenter(token string) (*TelegramPresenter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram api: %w", err)
	}
	return &TelegramPresenter{
		api:      api,
		messages: make(map[wakeup.Key]sentAlert),
		pending:  make(map[string]map[string]ActionToken),
		fireIDs:  make(map[wakeup.Key]string),
	}, nil
}

func (p *TelegramPresenter) Present(ctx context.Context, alert Alert) error {
	// Delete the previous message for this key so alerts replace rather
	// than stack (e.g. a re-fire after snooze).
	p.mu.Lock()
	if prev, ok := p.messages[alert.Key]; ok {
		deleteMsg := tgbotapi.NewDeleteMessage(prev.chatID, prev.messageID)
		if _, err := p.api.Request(deleteMsg); err != nil {
			log.Printf("Failed to delete old alert message %d: %v", prev.messageID, err)
			// Continue anyway, the old message might have been deleted by user
		}
		delete(p.messages, alert.Key)
	}
	if oldFire, ok := p.fireIDs[alert.Key]; ok {
		delete(p.pending, oldFire)
	}
	p.mu.Unlock()

	text := alert.Title
	if alert.Body != "" {
		text += "\n\n" + alert.Body
	}
	msg := tgbotapi.NewMessage(alert.OwnerID, text)

	var row []tgbotapi.InlineKeyboardButton
	var fireID string
	tokens := make(map[string]ActionToken, len(alert.Buttons))
	for _, b := range alert.Buttons {
		fireID = b.Token.FireID
		tokens[string(b.Token.Action)] = b.Token
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			b.Label,
			fmt.Sprintf("act:%s:%s", b.Token.FireID, b.Token.Action),
		))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(row...))

	sent, err := p.api.Send(msg)
	if err != nil {
		return fmt.Errorf("send alert message: %w", err)
	}

	p.mu.Lock()
	p.messages[alert.Key] = sentAlert{chatID: alert.OwnerID, messageID: sent.MessageID}
	p.pending[fireID] = tokens
	p.fireIDs[alert.Key] = fireID
	p.mu.Unlock()
	return nil
}

func (p *TelegramPresenter) Dismiss(ctx context.Context, key wakeup.Key) error {
	p.mu.Lock()
	prev, ok := p.messages[key]
	if ok {
		delete(p.messages, key)
	}
	if fireID, haveFire := p.fireIDs[key]; haveFire {
		delete(p.pending, fireID)
		delete(p.fireIDs, key)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	deleteMsg := tgbotapi.NewDeleteMessage(prev.chatID, prev.messageID)
	if _, err := p.api.Request(deleteMsg); err != nil {
		log.Printf("Failed to delete alert message %d: %v", prev.messageID, err)
	}
	return nil
}

// Listen drains callback queries and forwards decoded action tokens to
// handle. Blocks until ctx is done.
func (p *TelegramPresenter) Listen(ctx context.Context, handle func(context.Context, ActionToken) error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := p.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.CallbackQuery == nil {
				continue
			}
			p.handleCallback(ctx, update.CallbackQuery, handle)
		}
	}
}

func (p *TelegramPresenter) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, handle func(context.Context, ActionToken) error) {
	parts := strings.SplitN(cb.Data, ":", 3)
	if len(parts) != 3 || parts[0] != "act" {
		return
	}
	fireID, kind := parts[1], parts[2]

	p.mu.Lock()
	tokens, ok := p.pending[fireID]
	p.mu.Unlock()
	if !ok {
		// Stale button: the alert was replaced or the process restarted.
		ack := tgbotapi.NewCallback(cb.ID, "This reminder has expired")
		if _, err := p.api.Request(ack); err != nil {
			log.Printf("Failed to answer stale callback: %v", err)
		}
		return
	}
	token, ok := tokens[kind]
	if !ok {
		log.Printf("Callback for unknown action kind %q (fire %s)", kind, fireID)
		return
	}

	if err := handle(ctx, token); err != nil {
		log.Printf("Failed to process action %s for reminder %d: %v", kind, token.Key.ReminderID, err)
	}

	ack := tgbotapi.NewCallback(cb.ID, "")
	if _, err := p.api.Request(ack); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}
}
