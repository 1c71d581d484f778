package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	ButtonLogin                = "💠 Login"
	ButtonAuthenticate         = "👨‍💻 Authenticate Bank"
	ButtonLinkDone             = "✅ I've Authenticated"
	ButtonBalance              = "💳 Get Balance"
	ButtonTransactions         = "📇 Get Transactions"
	ButtonSettings             = "⚙️ Settings"
	ButtonBack                 = "⬅️ Back"
	ButtonEnableNotifications  = "✅ Enable Notifications"
	ButtonDisableNotifications = "❌ Disable Notifications"
	ButtonNotifyEveryone       = "🔊 Notify Everyone"
)

func mainKeyboard(isAdmin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonTransactions),
			tgbotapi.NewKeyboardButton(ButtonBalance),
		),
	}
	if isAdmin {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonNotifyEveryone),
			tgbotapi.NewKeyboardButton(ButtonSettings),
		))
	} else {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonSettings),
		))
	}
	return resized(tgbotapi.NewReplyKeyboard(rows...))
}

func settingsKeyboard(notifyEnabled bool) tgbotapi.ReplyKeyboardMarkup {
	toggle := ButtonEnableNotifications
	if notifyEnabled {
		toggle = ButtonDisableNotifications
	}
	return resized(tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonBack),
			tgbotapi.NewKeyboardButton(toggle),
		),
	))
}

func loginKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return resized(tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonLogin)),
	))
}

func linkDoneKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return resized(tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonLinkDone),
			tgbotapi.NewKeyboardButton(ButtonLogin),
		),
	))
}

func backKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return resized(tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonBack)),
	))
}

// authLinkMarkup - кнопка со ссылкой на согласие в банке
func authLinkMarkup(link string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(ButtonAuthenticate, link),
		),
	)
}

func resized(kb tgbotapi.ReplyKeyboardMarkup) tgbotapi.ReplyKeyboardMarkup {
	kb.ResizeKeyboard = true
	return kb
}
