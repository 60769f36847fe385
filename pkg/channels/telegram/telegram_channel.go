package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pointer/pkg/api"
	"pointer/pkg/utils"
)

// maxDocumentBytes caps attached files; larger documents are ignored.
const maxDocumentBytes = 1 << 20

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token string `json:"token"` // issued by @BotFather
}

// TelegramChannel is the chat front-end on Telegram. Text documents sent
// with a message become file attachments.
type TelegramChannel struct {
	config       TelegramConfig
	bot          *tgbotapi.BotAPI
	messageLimit int          // characters per message bubble
	httpClient   *http.Client // downloads attached documents
	stopCtx      context.Context
	stopCancel   context.CancelFunc
}

func NewTelegramChannel(cfg TelegramConfig, msgLimit int, timeoutMs int) (*TelegramChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// Connections are dialed under stopCtx so Stop aborts the active
	// long poll; otherwise a restarted bot gets 409 Conflict.
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	botHTTPClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				merged, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-ctx.Done():
						mergedCancel()
					case <-merged.Done():
					}
				}()
				return dialer.DialContext(merged, network, addr)
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, botHTTPClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	if msgLimit <= 0 {
		msgLimit = 4000
	}
	return &TelegramChannel{
		config:       cfg,
		bot:          bot,
		messageLimit: msgLimit,
		httpClient:   &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		stopCtx:      ctx,
		stopCancel:   cancel,
	}, nil
}

func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start runs the long-polling loop in the background.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	go t.poll(ctx)
	return nil
}

func (t *TelegramChannel) poll(ctx api.ChannelContext) {
	offset := 0
	for {
		select {
		case <-t.stopCtx.Done():
			return
		default:
		}

		req := tgbotapi.NewUpdate(offset)
		req.Timeout = 60
		updates, err := t.bot.GetUpdates(req)
		if err != nil {
			select {
			case <-t.stopCtx.Done():
				return
			case <-time.After(3 * time.Second):
				slog.Debug("Failed to get telegram updates", "error", err)
				continue
			}
		}

		for _, update := range updates {
			if update.UpdateID < offset {
				continue
			}
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.From == nil {
				continue
			}

			msg := t.unify(update.Message)
			if doc := update.Message.Document; doc != nil && !utils.IsMedia(doc.MimeType) {
				// downloads must not stall the update loop
				go func(msg *api.UnifiedMessage, doc *tgbotapi.Document) {
					if file, err := t.downloadDocument(doc); err == nil {
						msg.Files = append(msg.Files, *file)
					} else {
						slog.Error("Document download failed", "name", doc.FileName, "error", err)
					}
					ctx.OnMessage(t.ID(), msg)
				}(msg, doc)
				continue
			}
			ctx.OnMessage(t.ID(), msg)
		}
	}
}

// unify converts a Telegram message. /new and /cancel become commands.
func (t *TelegramChannel) unify(m *tgbotapi.Message) *api.UnifiedMessage {
	msg := &api.UnifiedMessage{
		Session: api.SessionContext{
			ChannelID: t.ID(),
			UserID:    strconv.FormatInt(m.From.ID, 10),
			ChatID:    strconv.FormatInt(m.Chat.ID, 10),
			Username:  m.From.UserName,
		},
		Content: m.Text,
		Raw:     m,
	}
	if msg.Content == "" {
		msg.Content = m.Caption
	}
	if m.IsCommand() {
		switch m.Command() {
		case "new":
			msg.Command = api.CommandNewSession
		case "cancel":
			msg.Command = api.CommandCancel
		}
	}
	return msg
}

func (t *TelegramChannel) downloadDocument(doc *tgbotapi.Document) (*api.FileAttachment, error) {
	if doc.FileSize > maxDocumentBytes {
		return nil, fmt.Errorf("document %s is too large (%d bytes)", doc.FileName, doc.FileSize)
	}
	info, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: doc.FileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	resp, err := t.httpClient.Get(info.Link(t.config.Token))
	if err != nil {
		return nil, fmt.Errorf("failed to download document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download document: status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = utils.DetectMime(doc.FileName, data)
	}
	return &api.FileAttachment{
		Filename: doc.FileName,
		MimeType: mimeType,
		Data:     data,
	}, nil
}

// SendSignal implements api.SignalingChannel: work in progress shows as
// "typing".
func (t *TelegramChannel) SendSignal(session api.SessionContext, signal string) error {
	if signal != "thinking" && !strings.HasPrefix(signal, "tool:") {
		return nil
	}
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel()
	if httpClient, ok := t.bot.Client.(*http.Client); ok && httpClient != nil {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
	return nil
}

// Send implements api.Channel, splitting long text into several bubbles.
func (t *TelegramChannel) Send(session api.SessionContext, message string) error {
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}

	for i, part := range splitMessage(message, t.messageLimit) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("telegram send failed at part %d: %w", i, err)
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for i := 0; i < len(runes); i += limit {
		end := min(i+limit, len(runes))
		parts = append(parts, string(runes[i:end]))
	}
	return parts
}
