package dispatch

import apperrors "anonrelay-bot/internal/common/errors"

// User-facing texts. The bot speaks Russian.
const (
	msgGreeting       = "👋 Привет! Выбери действие:"
	msgAdminPanel     = "🔧 Админ-панель:"
	msgNoPanelAccess  = "⛔ У тебя нет доступа в админ-панель."
	msgNoCapability   = "⛔ Недостаточно прав для этого действия."
	msgUnknownCommand = "🤔 Неизвестная команда. Попробуй /start."
	msgUnknownAction  = "🤔 Эта кнопка больше не поддерживается."
	msgInternal       = "⚠️ Что-то пошло не так, попробуй ещё раз."

	msgCancelled       = "✅ Действие отменено."
	msgNothingToCancel = "ℹ️ Нечего отменять."

	msgPromptSend = "✍️ Напиши сообщение — я разошлю его анонимно."
	msgSent       = "✅ Сообщение отправлено."

	msgRejectBanned    = "⛔ Ты заблокирован и не можешь отправлять сообщения."
	msgRejectMuted     = "🤐 Ты в муте. Подожди, пока он закончится."
	msgRejectAdminChat = "💬 Сейчас включён режим только для админов."

	msgPromptAdminAdd     = "➕ Введи @handle нового админа:"
	msgPromptAdminRemove  = "➖ Введи @handle админа для удаления:"
	msgPromptPermsTarget  = "⚙️ Введи @handle админа, чьи права настроить:"
	msgPromptMute         = "⏱️ Введи @handle и длительность в минутах (0 — снять мут):"
	msgPromptBan          = "🚫 Введи @handle для бана:"
	msgPromptUnban        = "♻️ Введи @handle для разбана:"
	msgPromptBroadcast    = "📢 Введи текст рассылки:"
	msgPromptImpersonate  = "🧑‍💬 Введи номер псевдонима и текст, например: 1234 привет"
	msgPromptPrivateReply = "📩 Введи номер псевдонима и текст ответа:"

	msgWantHandle    = "⚠️ Нужен один @handle. Попробуй ещё раз или /cancel."
	msgWantMuteSpec  = "⚠️ Нужен @handle и положительное число минут. Попробуй ещё раз."
	msgWantBroadcast = "⚠️ Текст рассылки пуст. Попробуй ещё раз."
	msgWantAnonSpec  = "⚠️ Нужен номер псевдонима и текст. Попробуй ещё раз."

	msgAdminAdded   = "✅ %s добавлен в админы."
	msgAdminAlready = "ℹ️ %s уже админ."
	msgAdminRemoved = "✅ %s больше не админ."
	msgAdminMissing = "ℹ️ %s не является админом."
	msgPermsHeader  = "⚙️ Права %s:"

	msgMuted       = "🤐 %s замьючен на %d мин."
	msgMuteCleared = "✅ Мут для %s снят."
	msgUserMissing = "ℹ️ Пользователь %s не найден."

	msgBanned       = "🚫 %s забанен."
	msgBanAlready   = "ℹ️ %s уже забанен."
	msgUnbanned     = "✅ %s разбанен."
	msgUnbanMissing = "ℹ️ %s не был забанен."

	msgBroadcastDone = "📢 Рассылка завершена (%d получателей)."

	msgAnonMissing  = "ℹ️ Пользователь Anon#%d не найден."
	msgImpersonated = "✅ Сообщение отправлено от имени %s."

	msgPrivateReplyPrefix = "📩 Ответ администратора: "
	msgPrivateReplied     = "✅ Ответ доставлен %s."
	msgDeliveryFailed     = "⚠️ Не удалось доставить сообщение."

	msgAdminChatOn  = "💬 Режим только админов: включён."
	msgAdminChatOff = "💬 Режим только админов: выключен."

	msgExported     = "📤 Экспорт отправлен документом."
	msgExportFailed = "⚠️ Не удалось отправить экспорт."
	msgStoreFailure = "⚠️ Не удалось сохранить изменения, действие отменено."

	msgForbidden = "⛔ Это действие запрещено."
	msgNotFound  = "ℹ️ Ничего не найдено по запросу."
)

// rejectionText maps an application error to the user-legible rejection.
func rejectionText(err error) string {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return msgInternal
	}
	switch appErr.Code {
	case apperrors.ErrCodeUserBanned:
		return msgRejectBanned
	case apperrors.ErrCodeUserMuted:
		return msgRejectMuted
	case apperrors.ErrCodeForbidden:
		if mode, ok := appErr.Details["mode"].(string); ok && mode == "admin_chat" {
			return msgRejectAdminChat
		}
		return msgForbidden
	case apperrors.ErrCodeNotFound:
		return msgNotFound
	case apperrors.ErrCodeValidation:
		return msgInternal
	case apperrors.ErrCodePersistence:
		return msgStoreFailure
	default:
		return msgInternal
	}
}
