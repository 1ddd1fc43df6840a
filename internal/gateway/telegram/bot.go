package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tb "gopkg.in/telebot.v3"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/common/logger"
	"anonrelay-bot/internal/gateway"
)

// Handler consumes normalized inbound events.
type Handler interface {
	HandleEvent(ctx context.Context, ev gateway.Event, rsp gateway.Responder) error
}

// Bot adapts telebot to the messaging gateway: it normalizes inbound
// updates into events and implements the outbound Sender.
type Bot struct {
	bot     *tb.Bot
	handler Handler
}

func New(token string, pollTimeout, sendTimeout time.Duration) (*Bot, error) {
	b, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: pollTimeout},
		Client: &http.Client{Timeout: sendTimeout},
	})
	if err != nil {
		return nil, apperrors.NewTelegramAPIError("connect", err)
	}
	return &Bot{bot: b}, nil
}

// Bind registers the update handlers. Must be called before Start.
func (b *Bot) Bind(h Handler) {
	b.handler = h

	for _, cmd := range []string{"/start", "/admin", "/send", "/cancel"} {
		command := cmd
		b.bot.Handle(command, func(c tb.Context) error {
			return b.dispatch(c, gateway.KindCommand, command)
		})
	}

	b.bot.Handle(tb.OnText, func(c tb.Context) error {
		// Незарегистрированные слэш-команды не должны уходить в релей
		if strings.HasPrefix(c.Text(), "/") {
			return b.dispatch(c, gateway.KindCommand, c.Text())
		}
		return b.dispatch(c, gateway.KindText, c.Text())
	})

	b.bot.Handle(tb.OnCallback, func(c tb.Context) error {
		// Сначала подтверждаем нажатие, чтобы кнопка не «висела»
		_ = c.Respond(&tb.CallbackResponse{})
		data := strings.TrimPrefix(c.Callback().Data, "\f")
		return b.dispatch(c, gateway.KindButton, data)
	})
}

// Start runs the long-polling loop; it blocks until Stop.
func (b *Bot) Start() {
	logger.Info().Msg("Telegram poller started")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
}

func (b *Bot) dispatch(c tb.Context, kind gateway.EventKind, payload string) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ev := gateway.Event{
		ID:      fmt.Sprint(c.Update().ID),
		ActorID: sender.ID,
		Kind:    kind,
		Payload: payload,
	}
	if sender.Username != "" {
		ev.ActorHandle = "@" + sender.Username
	}
	return b.handler.HandleEvent(context.Background(), ev, responder{c: c})
}

// SendText delivers one text message; the context bounds the attempt.
func (b *Bot) SendText(ctx context.Context, recipient int64, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := b.bot.Send(&tb.User{ID: recipient}, text)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return apperrors.NewTelegramAPIError("sendMessage", err)
		}
		return nil
	case <-ctx.Done():
		return apperrors.NewTelegramAPIError("sendMessage", ctx.Err())
	}
}

// SendDocument uploads data as a document attachment.
func (b *Bot) SendDocument(ctx context.Context, recipient int64, data []byte, filename string) error {
	doc := &tb.Document{
		File:     tb.FromReader(bytes.NewReader(data)),
		FileName: filename,
	}
	done := make(chan error, 1)
	go func() {
		_, err := b.bot.Send(&tb.User{ID: recipient}, doc)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return apperrors.NewTelegramAPIError("sendDocument", err)
		}
		return nil
	case <-ctx.Done():
		return apperrors.NewTelegramAPIError("sendDocument", ctx.Err())
	}
}

// responder replies in the context of one update.
type responder struct {
	c tb.Context
}

func (r responder) Reply(text string, rows ...[]gateway.Button) error {
	if m := markup(rows); m != nil {
		return r.c.Send(text, m)
	}
	return r.c.Send(text)
}

func (r responder) Edit(text string, rows ...[]gateway.Button) error {
	if r.c.Callback() == nil {
		return r.Reply(text, rows...)
	}
	var err error
	if m := markup(rows); m != nil {
		err = r.c.Edit(text, m)
	} else {
		err = r.c.Edit(text)
	}
	if errors.Is(err, tb.ErrSameMessageContent) {
		// Телеграм отклоняет Edit, если текст не изменился.
		// В этом случае отвечаем новым сообщением вместо ошибки пользователю.
		return r.Reply(text, rows...)
	}
	if err != nil {
		return apperrors.NewTelegramAPIError("editMessageText", err)
	}
	return nil
}

func markup(rows [][]gateway.Button) *tb.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]tb.InlineButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tb.InlineButton, 0, len(row))
		for _, btn := range row {
			line = append(line, tb.InlineButton{Text: btn.Text, Data: btn.Data, URL: btn.URL})
		}
		kb = append(kb, line)
	}
	return &tb.ReplyMarkup{InlineKeyboard: kb}
}
