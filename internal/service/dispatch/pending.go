package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/common/logger"
	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/gateway"
	"anonrelay-bot/internal/service/conversation"
	"anonrelay-bot/internal/service/identity"
)

// pendingCapability maps each pending kind to the capability re-checked at
// consumption time. A capability revoked between the button press and the
// text submission discards the pending action with a rejection.
var pendingCapability = map[conversation.Kind]store.Capability{
	conversation.KindAwaitAdminAdd:    store.CapManagePerms,
	conversation.KindAwaitAdminRemove: store.CapManagePerms,
	conversation.KindAwaitPermsTarget: store.CapManagePerms,
	conversation.KindAwaitMuteSpec:    store.CapMute,
	conversation.KindAwaitBanTarget:   store.CapMute,
	conversation.KindAwaitUnbanTarget: store.CapMute,
	conversation.KindAwaitBroadcast:   store.CapBroadcast,
	conversation.KindAwaitImpersonate: store.CapImpersonate,
	conversation.KindAwaitPrivReply:   store.CapPrivateReply,
}

// consumePending interprets ev.Payload as the argument of the taken pending
// action. The action is already consumed; only a malformed input puts it
// back so the user may retry the same step.
func (d *Dispatcher) consumePending(ctx context.Context, ev gateway.Event, p conversation.Pending, rsp gateway.Responder) error {
	// Повторная проверка прав на момент потребления
	if required, needed := pendingCapability[p.Kind]; needed {
		if ev.ActorHandle == "" || !d.perms.IsAdmin(ev.ActorHandle) || !d.perms.HasCapability(ev.ActorHandle, required) {
			return d.fail(ev, rsp, apperrors.NewForbiddenError("capability lost before consumption: "+string(required)), msgNoCapability)
		}
	}

	text := strings.TrimSpace(ev.Payload)

	switch p.Kind {
	case conversation.KindAwaitSendText:
		if err := d.canPost(ev); err != nil {
			return d.fail(ev, rsp, err, rejectionText(err))
		}
		return d.relayFrom(ctx, ev.ActorID, ev.Payload, rsp)

	case conversation.KindAwaitAdminAdd:
		handle, err := parseHandle(text)
		if err != nil {
			return d.retry(ev, p, rsp, err, msgWantHandle)
		}
		added, err := d.perms.GrantAdmin(ctx, handle)
		if err != nil {
			return d.fail(ev, rsp, err, msgStoreFailure)
		}
		if !added {
			return rsp.Reply(fmt.Sprintf(msgAdminAlready, handle))
		}
		return rsp.Reply(fmt.Sprintf(msgAdminAdded, handle))

	case conversation.KindAwaitAdminRemove:
		handle, err := parseHandle(text)
		if err != nil {
			return d.retry(ev, p, rsp, err, msgWantHandle)
		}
		if err := d.perms.RevokeAdmin(ctx, handle); err != nil {
			return d.fail(ev, rsp, err, rejectionText(err))
		}
		return rsp.Reply(fmt.Sprintf(msgAdminRemoved, handle))

	case conversation.KindAwaitPermsTarget:
		handle, err := parseHandle(text)
		if err != nil {
			return d.retry(ev, p, rsp, err, msgWantHandle)
		}
		if !d.perms.IsAdmin(handle) {
			return d.fail(ev, rsp, apperrors.NewNotFoundError("admin", handle), fmt.Sprintf(msgAdminMissing, handle))
		}
		return rsp.Reply(fmt.Sprintf(msgPermsHeader, handle), d.permsKeyboard(handle)...)

	case conversation.KindAwaitMuteSpec:
		return d.consumeMuteSpec(ctx, ev, p, text, rsp)

	case conversation.KindAwaitBanTarget:
		handle, err := parseHandle(text)
		if err != nil {
			return d.retry(ev, p, rsp, err, msgWantHandle)
		}
		banned, err := d.mod.Ban(ctx, handle)
		if err != nil {
			return d.fail(ev, rsp, err, msgStoreFailure)
		}
		if !banned {
			return rsp.Reply(fmt.Sprintf(msgBanAlready, handle))
		}
		return rsp.Reply(fmt.Sprintf(msgBanned, handle))

	case conversation.KindAwaitUnbanTarget:
		handle, err := parseHandle(text)
		if err != nil {
			return d.retry(ev, p, rsp, err, msgWantHandle)
		}
		removed, err := d.mod.Unban(ctx, handle)
		if err != nil {
			return d.fail(ev, rsp, err, msgStoreFailure)
		}
		if !removed {
			return rsp.Reply(fmt.Sprintf(msgUnbanMissing, handle))
		}
		return rsp.Reply(fmt.Sprintf(msgUnbanned, handle))

	case conversation.KindAwaitBroadcast:
		if text == "" {
			return d.retry(ev, p, rsp, apperrors.NewValidationError("text", "empty broadcast"), msgWantBroadcast)
		}
		if err := d.countMessage(ctx); err != nil {
			return d.fail(ev, rsp, err, msgStoreFailure)
		}
		delivered := d.fanOut(ctx, d.recipients(ev.ActorID), "📢 "+text)
		logger.Info().Str("event_id", ev.ID).Int("delivered", delivered).Msg("Broadcast complete")
		return rsp.Reply(fmt.Sprintf(msgBroadcastDone, delivered))

	case conversation.KindAwaitImpersonate:
		return d.consumeImpersonate(ctx, ev, p, text, rsp)

	case conversation.KindAwaitPrivReply:
		return d.consumePrivateReply(ctx, ev, p, text, rsp)

	default:
		logger.Warn().Str("event_id", ev.ID).Str("kind", string(p.Kind)).Msg("Pending action of unknown kind dropped")
		return nil
	}
}

func (d *Dispatcher) consumeMuteSpec(ctx context.Context, ev gateway.Event, p conversation.Pending, text string, rsp gateway.Responder) error {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return d.retry(ev, p, rsp, apperrors.NewValidationError("mute", "want handle and minutes"), msgWantMuteSpec)
	}
	handle, err := parseHandle(fields[0])
	if err != nil {
		return d.retry(ev, p, rsp, err, msgWantMuteSpec)
	}
	minutes, convErr := strconv.Atoi(fields[1])
	if convErr != nil || minutes < 0 {
		return d.retry(ev, p, rsp, apperrors.NewValidationError("minutes", "not a positive integer"), msgWantMuteSpec)
	}

	id, ok := d.identity.IDByHandle(handle)
	if !ok {
		return d.fail(ev, rsp, apperrors.NewNotFoundError("user", handle), fmt.Sprintf(msgUserMissing, handle))
	}
	if err := d.mod.Mute(ctx, id, minutes); err != nil {
		return d.fail(ev, rsp, err, rejectionText(err))
	}
	if minutes == 0 {
		return rsp.Reply(fmt.Sprintf(msgMuteCleared, handle))
	}
	return rsp.Reply(fmt.Sprintf(msgMuted, handle, minutes))
}

func (d *Dispatcher) consumeImpersonate(ctx context.Context, ev gateway.Event, p conversation.Pending, text string, rsp gateway.Responder) error {
	anon, body, err := parseAnonSpec(text)
	if err != nil {
		return d.retry(ev, p, rsp, err, msgWantAnonSpec)
	}
	ownerID, ok := d.identity.IDByAnon(anon)
	if !ok {
		return d.fail(ev, rsp, apperrors.NewNotFoundError("pseudonym", anon), fmt.Sprintf(msgAnonMissing, anon))
	}
	if err := d.countMessage(ctx); err != nil {
		return d.fail(ev, rsp, err, msgStoreFailure)
	}

	// Рассылаем как обычный релей, но от имени чужого псевдонима;
	// владелец псевдонима и сам админ копию не получают
	delivered := d.fanOut(ctx, d.recipients(ownerID, ev.ActorID), fmt.Sprintf("%s: %s", identity.Pseudonym(anon), body))
	logger.Info().Str("event_id", ev.ID).Int("anon", anon).Int("delivered", delivered).Msg("Impersonated message relayed")
	return rsp.Reply(fmt.Sprintf(msgImpersonated, identity.Pseudonym(anon)))
}

func (d *Dispatcher) consumePrivateReply(ctx context.Context, ev gateway.Event, p conversation.Pending, text string, rsp gateway.Responder) error {
	anon, body, err := parseAnonSpec(text)
	if err != nil {
		return d.retry(ev, p, rsp, err, msgWantAnonSpec)
	}
	ownerID, ok := d.identity.IDByAnon(anon)
	if !ok {
		return d.fail(ev, rsp, apperrors.NewNotFoundError("pseudonym", anon), fmt.Sprintf(msgAnonMissing, anon))
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if err := d.sender.SendText(sendCtx, ownerID, msgPrivateReplyPrefix+body); err != nil {
		return d.fail(ev, rsp, apperrors.NewDeliveryError(ownerID, err), msgDeliveryFailed)
	}
	return rsp.Reply(fmt.Sprintf(msgPrivateReplied, identity.Pseudonym(anon)))
}

// retry preserves the pending action after malformed input; the corrective
// message is the only side effect.
func (d *Dispatcher) retry(ev gateway.Event, p conversation.Pending, rsp gateway.Responder, err error, userMsg string) error {
	d.conv.Keep(ev.ActorID, p)
	logger.Info().
		Err(err).
		Str("event_id", ev.ID).
		Int64("actor_id", ev.ActorID).
		Str("kind", string(p.Kind)).
		Msg("Malformed input, pending action preserved")
	return rsp.Reply(userMsg)
}

// parseHandle validates a single "@name" token.
func parseHandle(text string) (string, error) {
	h := strings.TrimSpace(text)
	if !strings.HasPrefix(h, "@") || len(h) < 2 || strings.ContainsAny(h, " \t\n") {
		return "", apperrors.NewValidationError("handle", "want a single @handle")
	}
	return h, nil
}

// parseAnonSpec parses "<suffix> <text>"; the suffix may be written as
// 1234, #1234 or Anon#1234.
func parseAnonSpec(text string) (int, string, error) {
	parts := strings.SplitN(text, " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return 0, "", apperrors.NewValidationError("spec", "want pseudonym suffix and text")
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(parts[0], "Anon"), "#")
	anon, err := strconv.Atoi(raw)
	if err != nil || anon <= 0 {
		return 0, "", apperrors.NewValidationError("pseudonym", "suffix is not a number")
	}
	return anon, strings.TrimSpace(parts[1]), nil
}
