package telegram

import (
	"strings"
)

// Action - нажатая кнопка reply-клавиатуры
type Action int

const (
	ActionUnknown Action = iota
	ActionLogin
	ActionLinkDone
	ActionBalance
	ActionTransactions
	ActionSettings
	ActionBack
	ActionEnableNotifications
	ActionDisableNotifications
	ActionNotifyEveryone
)

var actionNames = map[Action]string{
	ActionUnknown:              "unknown",
	ActionLogin:                "login",
	ActionLinkDone:             "link_done",
	ActionBalance:              "balance",
	ActionTransactions:         "transactions",
	ActionSettings:             "settings",
	ActionBack:                 "back",
	ActionEnableNotifications:  "enable_notifications",
	ActionDisableNotifications: "disable_notifications",
	ActionNotifyEveryone:       "notify_everyone",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

var buttonActions = map[string]Action{
	normalizeButton(ButtonLogin):                ActionLogin,
	normalizeButton(ButtonLinkDone):             ActionLinkDone,
	normalizeButton(ButtonBalance):              ActionBalance,
	normalizeButton(ButtonTransactions):         ActionTransactions,
	normalizeButton(ButtonSettings):             ActionSettings,
	normalizeButton(ButtonBack):                 ActionBack,
	normalizeButton(ButtonEnableNotifications):  ActionEnableNotifications,
	normalizeButton(ButtonDisableNotifications): ActionDisableNotifications,
	normalizeButton(ButtonNotifyEveryone):       ActionNotifyEveryone,
}

// команды-синонимы для тех, кто спрятал клавиатуру
var commandActions = map[string]Action{
	"login":        ActionLogin,
	"done":         ActionLinkDone,
	"balance":      ActionBalance,
	"transactions": ActionTransactions,
	"settings":     ActionSettings,
	"notify_on":    ActionEnableNotifications,
	"notify_off":   ActionDisableNotifications,
}

// ParseAction сопоставляет текст кнопки действию. Регистр и лишние пробелы
// не важны, эмодзи обязателен только в тексте кнопки, не в сравнении.
func ParseAction(text string) Action {
	key := normalizeButton(text)
	if key == "" {
		return ActionUnknown
	}
	if a, ok := buttonActions[key]; ok {
		return a
	}
	return ActionUnknown
}

// ParseCommandAction - /balance, /transactions и т.п.
func ParseCommandAction(command string) Action {
	if a, ok := commandActions[strings.ToLower(command)]; ok {
		return a
	}
	return ActionUnknown
}

// normalizeButton убирает эмодзи-префикс и приводит к нижнему регистру
func normalizeButton(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	if !isWordStart(fields[0]) {
		fields = fields[1:]
	}
	return strings.ToLower(strings.Join(fields, " "))
}

func isWordStart(s string) bool {
	for _, r := range s {
		return r < 0x2000
	}
	return false
}
