package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/common/logger"
	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/gateway"
	"anonrelay-bot/internal/service/conversation"
	"anonrelay-bot/internal/service/identity"
	"anonrelay-bot/internal/service/moderation"
	"anonrelay-bot/internal/service/perms"
	"anonrelay-bot/internal/state"
)

// Dispatcher routes every inbound event to the right handler, enforcing the
// check order: ban, mute (relay path only), admin membership, capability,
// input shape, then execution. A failure at any check short-circuits with a
// user-legible rejection and no partial mutation.
type Dispatcher struct {
	engine      *state.Engine
	identity    *identity.Service
	perms       *perms.Service
	mod         *moderation.Service
	conv        *conversation.Tracker
	sender      gateway.Sender
	sendTimeout time.Duration
	logsURL     string
	donateURL   string
}

type Options struct {
	SendTimeout time.Duration
	LogsURL     string // external URL of the /logs endpoint, optional
	DonateURL   string // optional "support the author" button
}

func New(
	engine *state.Engine,
	ident *identity.Service,
	prm *perms.Service,
	mod *moderation.Service,
	conv *conversation.Tracker,
	sender gateway.Sender,
	opts Options,
) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	return &Dispatcher{
		engine:      engine,
		identity:    ident,
		perms:       prm,
		mod:         mod,
		conv:        conv,
		sender:      sender,
		sendTimeout: opts.SendTimeout,
		logsURL:     opts.LogsURL,
		donateURL:   opts.DonateURL,
	}
}

// HandleEvent is the single entry point for commands, button presses and
// free text.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev gateway.Event, rsp gateway.Responder) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	// Регистрация при первом контакте, идемпотентна для остальных
	if _, err := d.identity.Register(ctx, ev.ActorID, ev.ActorHandle); err != nil {
		return d.fail(ev, rsp, err, msgInternal)
	}

	switch ev.Kind {
	case gateway.KindCommand:
		return d.handleCommand(ctx, ev, rsp)
	case gateway.KindButton:
		return d.handleButton(ctx, ev, rsp)
	case gateway.KindText:
		return d.handleText(ctx, ev, rsp)
	default:
		logger.Warn().Str("event_id", ev.ID).Str("kind", string(ev.Kind)).Msg("Unknown event kind")
		return nil
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev gateway.Event, rsp gateway.Responder) error {
	switch ev.Payload {
	case "/start":
		return rsp.Reply(msgGreeting, d.userKeyboard()...)

	case "/admin":
		if ev.ActorHandle == "" || !d.perms.IsAdmin(ev.ActorHandle) {
			return rsp.Reply(msgNoPanelAccess)
		}
		return rsp.Reply(msgAdminPanel, d.adminPanelKeyboard()...)

	case "/send":
		return d.beginSend(ctx, ev, rsp)

	case "/cancel":
		// Отмена всегда доступна, без проверок прав
		if d.conv.Cancel(ev.ActorID) {
			return rsp.Reply(msgCancelled)
		}
		return rsp.Reply(msgNothingToCancel)

	default:
		return rsp.Reply(msgUnknownCommand)
	}
}

// handleText interprets free text: as the argument of the pending action
// when one exists, as an ordinary relay message otherwise.
func (d *Dispatcher) handleText(ctx context.Context, ev gateway.Event, rsp gateway.Responder) error {
	if p, ok := d.conv.Take(ev.ActorID); ok {
		return d.consumePending(ctx, ev, p, rsp)
	}

	// Idle: обычный анонимный релей
	if err := d.canPost(ev); err != nil {
		return d.fail(ev, rsp, err, rejectionText(err))
	}
	return d.relayFrom(ctx, ev.ActorID, ev.Payload, rsp)
}

// beginSend installs the send flow after the ban/mute/admin-chat gates.
func (d *Dispatcher) beginSend(ctx context.Context, ev gateway.Event, rsp gateway.Responder) error {
	if err := d.canPost(ev); err != nil {
		return d.fail(ev, rsp, err, rejectionText(err))
	}
	d.conv.Begin(ev.ActorID, conversation.KindAwaitSendText, "")
	return rsp.Reply(msgPromptSend)
}

// canPost applies the relay-path gates in order: ban, mute, admin-only mode.
func (d *Dispatcher) canPost(ev gateway.Event) *apperrors.AppError {
	if ev.ActorHandle != "" && d.mod.IsBanned(ev.ActorHandle) {
		return apperrors.New(apperrors.ErrCodeUserBanned, "sender is banned").WithUserID(ev.ActorID)
	}
	if !d.mod.IsPostable(ev.ActorID) {
		return apperrors.New(apperrors.ErrCodeUserMuted, "sender is muted").WithUserID(ev.ActorID)
	}
	var adminOnly bool
	d.engine.View(func(st *store.Store) {
		adminOnly = st.AdminChat
	})
	if adminOnly && (ev.ActorHandle == "" || !d.perms.IsAdmin(ev.ActorHandle)) {
		return apperrors.NewForbiddenError("admin-only chat mode is enabled").
			WithDetail("mode", "admin_chat").
			WithUserID(ev.ActorID)
	}
	return nil
}

// relayFrom fans the text out under the sender's own pseudonym and confirms
// to the sender. The message counter is made durable before delivery starts.
func (d *Dispatcher) relayFrom(ctx context.Context, senderID int64, text string, rsp gateway.Responder) error {
	name, ok := d.identity.PseudonymOf(senderID)
	if !ok {
		return d.fail(gateway.Event{ActorID: senderID}, rsp, apperrors.NewNotFoundError("user", senderID), msgInternal)
	}
	if err := d.countMessage(ctx); err != nil {
		return d.fail(gateway.Event{ActorID: senderID}, rsp, err, msgStoreFailure)
	}

	delivered := d.fanOut(ctx, d.recipients(senderID), fmt.Sprintf("%s: %s", name, text))
	logger.Info().Int64("sender_id", senderID).Int("delivered", delivered).Msg("Message relayed")
	return rsp.Reply(msgSent)
}

// recipients snapshots the fan-out set: every known user except the sender
// and the banned. Users registering mid-broadcast are an accepted race.
func (d *Dispatcher) recipients(exclude ...int64) []int64 {
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []int64
	d.engine.View(func(st *store.Store) {
		for id, u := range st.Users {
			if skip[id] {
				continue
			}
			if u.Handle != "" && st.IsBanned(u.Handle) {
				continue
			}
			out = append(out, id)
		}
	})
	return out
}

// fanOut delivers text to every recipient, at most once each. One slow or
// failing recipient never stalls the rest.
func (d *Dispatcher) fanOut(ctx context.Context, recipients []int64, text string) int {
	delivered := 0
	for _, id := range recipients {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := d.sender.SendText(sendCtx, id, text)
		cancel()
		if err != nil {
			appErr := apperrors.NewDeliveryError(id, err)
			logger.Warn().Err(appErr).Int64("recipient_id", id).Msg("Delivery failed, recipient skipped")
			continue
		}
		delivered++
	}
	return delivered
}

func (d *Dispatcher) countMessage(ctx context.Context) error {
	return d.engine.Update(ctx, func(st *store.Store) error {
		st.MessageCount++
		return nil
	})
}

// fail logs the error with the event id and sends the user-legible
// rejection. The returned error is nil: the request is finished.
func (d *Dispatcher) fail(ev gateway.Event, rsp gateway.Responder, err error, userMsg string) error {
	logger.Warn().
		Err(err).
		Str("event_id", ev.ID).
		Int64("actor_id", ev.ActorID).
		Str("actor_handle", ev.ActorHandle).
		Msg("Request rejected")
	return rsp.Reply(userMsg)
}
