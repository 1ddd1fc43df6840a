package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/common/logger"
	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/gateway"
	"anonrelay-bot/internal/service/conversation"
	"anonrelay-bot/internal/service/identity"
)

// Panel action names. Fixed: the callback payload grammar must stay
// compatible with already-rendered keyboards.
const (
	ActShowUsers       = "SHOW_USERS"
	ActShowAdmins      = "SHOW_ADMINS"
	ActShowStats       = "SHOW_STATS"
	ActAddAdmin        = "ADD_ADMIN"
	ActRemoveAdmin     = "REMOVE_ADMIN"
	ActSetPerms        = "SET_PERMS"
	ActTogglePerm      = "TOGGLE_PERM"
	ActMuteUser        = "MUTE_USER"
	ActBanUser         = "BAN_USER"
	ActUnbanUser       = "UNBAN_USER"
	ActExportData      = "EXPORT_DATA"
	ActBroadcast       = "BROADCAST"
	ActImpersonate     = "IMPERSONATE"
	ActToggleAdminChat = "TOGGLE_ADMIN_CHAT"
	ActPrivateReply    = "PRIVATE_REPLY"
	ActUserSend        = "USER_SEND"
)

// buttonCapability maps each privileged panel action to its required
// capability. Actions absent here need admin membership only for display
// actions, or nothing at all (USER_SEND).
var buttonCapability = map[string]store.Capability{
	ActShowUsers:       store.CapStats,
	ActShowAdmins:      store.CapStats,
	ActShowStats:       store.CapStats,
	ActAddAdmin:        store.CapManagePerms,
	ActRemoveAdmin:     store.CapManagePerms,
	ActSetPerms:        store.CapManagePerms,
	ActTogglePerm:      store.CapManagePerms,
	ActMuteUser:        store.CapMute,
	ActBanUser:         store.CapMute,
	ActUnbanUser:       store.CapMute,
	ActExportData:      store.CapExport,
	ActBroadcast:       store.CapBroadcast,
	ActImpersonate:     store.CapImpersonate,
	ActToggleAdminChat: store.CapAdminChat,
	ActPrivateReply:    store.CapPrivateReply,
}

// EncodeAction builds a callback payload: ACTION or ACTION|arg|arg,
// pipe-delimited, arguments positional.
func EncodeAction(action string, args ...string) string {
	if len(args) == 0 {
		return action
	}
	return action + "|" + strings.Join(args, "|")
}

// DecodeAction splits a callback payload into the action name and its
// positional arguments.
func DecodeAction(payload string) (string, []string) {
	parts := strings.Split(payload, "|")
	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts[0], parts[1:]
}

func (d *Dispatcher) handleButton(ctx context.Context, ev gateway.Event, rsp gateway.Responder) error {
	action, args := DecodeAction(ev.Payload)

	// Единственная кнопка без проверки админства
	if action == ActUserSend {
		return d.beginSend(ctx, ev, rsp)
	}

	if ev.ActorHandle == "" || !d.perms.IsAdmin(ev.ActorHandle) {
		return d.fail(ev, rsp, apperrors.NewForbiddenError("not an admin"), msgNoPanelAccess)
	}
	if required, needed := buttonCapability[action]; needed && !d.perms.HasCapability(ev.ActorHandle, required) {
		return d.fail(ev, rsp, apperrors.NewForbiddenError("missing capability "+string(required)), msgNoCapability)
	}

	switch action {
	case ActShowUsers:
		return rsp.Edit(d.renderUsers(), d.adminPanelKeyboard()...)
	case ActShowAdmins:
		return rsp.Edit(d.renderAdmins(), d.adminPanelKeyboard()...)
	case ActShowStats:
		return rsp.Edit(d.renderStats(), d.adminPanelKeyboard()...)

	case ActAddAdmin:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitAdminAdd, "")
		return rsp.Reply(msgPromptAdminAdd)
	case ActRemoveAdmin:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitAdminRemove, "")
		return rsp.Reply(msgPromptAdminRemove)
	case ActSetPerms:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitPermsTarget, "")
		return rsp.Reply(msgPromptPermsTarget)

	case ActTogglePerm:
		if len(args) != 2 {
			return d.fail(ev, rsp, apperrors.NewValidationError("payload", "want TOGGLE_PERM|handle|capability"), msgInternal)
		}
		return d.togglePerm(ctx, ev, args[0], store.Capability(args[1]), rsp)

	case ActMuteUser:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitMuteSpec, "")
		return rsp.Reply(msgPromptMute)
	case ActBanUser:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitBanTarget, "")
		return rsp.Reply(msgPromptBan)
	case ActUnbanUser:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitUnbanTarget, "")
		return rsp.Reply(msgPromptUnban)

	case ActBroadcast:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitBroadcast, "")
		return rsp.Reply(msgPromptBroadcast)
	case ActImpersonate:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitImpersonate, "")
		return rsp.Reply(msgPromptImpersonate)
	case ActPrivateReply:
		d.conv.Begin(ev.ActorID, conversation.KindAwaitPrivReply, "")
		return rsp.Reply(msgPromptPrivateReply)

	case ActExportData:
		return d.exportData(ctx, ev, rsp)

	case ActToggleAdminChat:
		return d.toggleAdminChat(ctx, ev, rsp)

	default:
		logger.Warn().Str("event_id", ev.ID).Str("action", action).Msg("Unknown panel action")
		return rsp.Reply(msgUnknownAction)
	}
}

func (d *Dispatcher) togglePerm(ctx context.Context, ev gateway.Event, handle string, c store.Capability, rsp gateway.Responder) error {
	if _, err := d.perms.ToggleCapability(ctx, handle, c); err != nil {
		return d.fail(ev, rsp, err, rejectionText(err))
	}
	return rsp.Edit(fmt.Sprintf(msgPermsHeader, handle), d.permsKeyboard(handle)...)
}

func (d *Dispatcher) exportData(ctx context.Context, ev gateway.Event, rsp gateway.Responder) error {
	data, err := d.engine.Snapshot()
	if err != nil {
		return d.fail(ev, rsp, apperrors.NewPersistenceError("snapshot", err), msgStoreFailure)
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if err := d.sender.SendDocument(sendCtx, ev.ActorID, data, "data.json"); err != nil {
		return d.fail(ev, rsp, apperrors.NewDeliveryError(ev.ActorID, err), msgExportFailed)
	}
	logger.Info().Str("event_id", ev.ID).Str("actor_handle", ev.ActorHandle).Msg("Store exported")
	return rsp.Reply(msgExported)
}

func (d *Dispatcher) toggleAdminChat(ctx context.Context, ev gateway.Event, rsp gateway.Responder) error {
	var enabled bool
	err := d.engine.Update(ctx, func(st *store.Store) error {
		st.AdminChat = !st.AdminChat
		enabled = st.AdminChat
		return nil
	})
	if err != nil {
		return d.fail(ev, rsp, err, msgStoreFailure)
	}
	if enabled {
		return rsp.Edit(msgAdminChatOn, d.adminPanelKeyboard()...)
	}
	return rsp.Edit(msgAdminChatOff, d.adminPanelKeyboard()...)
}

// --- keyboards ---

func (d *Dispatcher) userKeyboard() [][]gateway.Button {
	rows := [][]gateway.Button{
		{{Text: "🗨️ Отправить сообщение", Data: ActUserSend}},
	}
	if d.donateURL != "" {
		rows = append(rows, []gateway.Button{{Text: "💖 Поддержать автора", URL: d.donateURL}})
	}
	return rows
}

func (d *Dispatcher) adminPanelKeyboard() [][]gateway.Button {
	rows := [][]gateway.Button{
		{{Text: "👥 Пользователи", Data: ActShowUsers}},
		{{Text: "🧑‍💼 Администраторы", Data: ActShowAdmins}},
		{{Text: "📊 Статистика", Data: ActShowStats}},
		{
			{Text: "➕ Добавить админа", Data: ActAddAdmin},
			{Text: "➖ Удалить админа", Data: ActRemoveAdmin},
		},
		{
			{Text: "⚙️ Настроить права", Data: ActSetPerms},
			{Text: "⏱️ Тайм-аут / Мут", Data: ActMuteUser},
		},
		{
			{Text: "🚫 Бан", Data: ActBanUser},
			{Text: "♻️ Разбан", Data: ActUnbanUser},
		},
		{
			{Text: "📤 Экспорт данных", Data: ActExportData},
			{Text: "📢 Рассылка", Data: ActBroadcast},
		},
		{
			{Text: "🧑‍💬 Писать от имени", Data: ActImpersonate},
			{Text: "📩 Личный ответ", Data: ActPrivateReply},
		},
		{{Text: "💬 Режим только админов", Data: ActToggleAdminChat}},
	}
	if d.logsURL != "" {
		rows = append(rows, []gateway.Button{{Text: "📝 Скачать Логи", URL: d.logsURL}})
	}
	return rows
}

// permsKeyboard renders one toggle button per catalog capability for the
// target handle, with the current value in the label.
func (d *Dispatcher) permsKeyboard(handle string) [][]gateway.Button {
	caps := d.perms.Capabilities(handle)
	rows := make([][]gateway.Button, 0, len(store.Catalog))
	for _, c := range store.Catalog {
		mark := "❌"
		if caps[c] {
			mark = "✅"
		}
		rows = append(rows, []gateway.Button{{
			Text: fmt.Sprintf("%s %s", mark, c),
			Data: EncodeAction(ActTogglePerm, handle, string(c)),
		}})
	}
	return rows
}

// --- panel views ---

func (d *Dispatcher) renderUsers() string {
	var b strings.Builder
	b.WriteString("👥 Пользователи:\n")
	d.engine.View(func(st *store.Store) {
		users := make([]*store.User, 0, len(st.Users))
		for _, u := range st.Users {
			users = append(users, u)
		}
		sort.Slice(users, func(i, j int) bool { return users[i].Anon < users[j].Anon })
		for _, u := range users {
			handle := u.Handle
			if handle == "" {
				handle = "(без username)"
			}
			fmt.Fprintf(&b, "• %s — %s", identity.Pseudonym(u.Anon), handle)
			if u.Handle != "" && st.IsBanned(u.Handle) {
				b.WriteString(" 🚫")
			}
			b.WriteString("\n")
		}
	})
	return b.String()
}

func (d *Dispatcher) renderAdmins() string {
	var b strings.Builder
	b.WriteString("🧑‍💼 Администраторы:\n")
	d.engine.View(func(st *store.Store) {
		for _, a := range st.Admins {
			granted := 0
			for _, c := range store.Catalog {
				if st.Permissions[a][c] {
					granted++
				}
			}
			fmt.Fprintf(&b, "• %s — %d/%d прав\n", a, granted, len(store.Catalog))
		}
	})
	return b.String()
}

func (d *Dispatcher) renderStats() string {
	var b strings.Builder
	d.engine.View(func(st *store.Store) {
		mode := "выключен"
		if st.AdminChat {
			mode = "включён"
		}
		fmt.Fprintf(&b, "📊 Статистика:\n")
		fmt.Fprintf(&b, "• Пользователей: %d\n", len(st.Users))
		fmt.Fprintf(&b, "• Администраторов: %d\n", len(st.Admins))
		fmt.Fprintf(&b, "• Забанено: %d\n", len(st.Banned))
		fmt.Fprintf(&b, "• Сообщений переслано: %d\n", st.MessageCount)
		fmt.Fprintf(&b, "• Режим только админов: %s\n", mode)
	})
	return b.String()
}
