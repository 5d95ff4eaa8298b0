package model

// NotificationVariant は通知の表示種別。
type NotificationVariant string

const (
	NotificationDefault     NotificationVariant = "default"
	NotificationSuccess     NotificationVariant = "success"
	NotificationDestructive NotificationVariant = "destructive"
)

// Notification はユーザーに一度だけ表示する通知（トースト）。
type Notification struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Variant     NotificationVariant `json:"variant,omitempty"`
}

// IsError は失敗を知らせる通知かどうかを返す。
func (n Notification) IsError() bool {
	return n.Variant == NotificationDestructive
}
