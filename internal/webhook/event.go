// Package webhook は外部IdP（Clerk）のユーザーライフサイクルイベントを
// 受信し、冪等にストアへ反映する。
package webhook

import (
	"encoding/json"
	"fmt"
)

// EventKind はイベント種別を表す。
type EventKind int

const (
	// EventUnknown は処理対象外のイベント種別。エラーではなく認識済みno-opとして扱う。
	EventUnknown EventKind = iota
	// EventUserCreated はユーザー作成イベント（user.created）。
	EventUserCreated
	// EventUserUpdated はユーザー更新イベント（user.updated）。
	EventUserUpdated
	// EventUserDeleted はユーザー削除イベント（user.deleted）。
	EventUserDeleted
)

// EmailAddress はイベントペイロード内のメールアドレス1件を表す。
type EmailAddress struct {
	EmailAddress string `json:"email_address"`
}

// EventData はイベントペイロードのユーザープロファイル部を表す。
// IDは外部IdPが発行する不透明な文字列（例: "user_..."）。
type EventData struct {
	ID             string         `json:"id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
}

// PrimaryEmail は最初のメールアドレスを返す。存在しない場合は空文字列。
func (d EventData) PrimaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	return d.EmailAddresses[0].EmailAddress
}

// Event は受信したWebhookイベントを表す。
type Event struct {
	Kind EventKind
	Type string
	Data EventData
}

// rawEvent はワイヤフォーマットのイベント構造。
type rawEvent struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// ParseEvent はWebhookペイロードをイベントにデコードする。
// 未知のイベント種別はEventUnknownに分類する（エラーにはしない）。
func ParseEvent(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	return &Event{
		Kind: classifyEventType(raw.Type),
		Type: raw.Type,
		Data: raw.Data,
	}, nil
}

// classifyEventType はイベント種別文字列をEventKindに分類する。
func classifyEventType(eventType string) EventKind {
	switch eventType {
	case "user.created":
		return EventUserCreated
	case "user.updated":
		return EventUserUpdated
	case "user.deleted":
		return EventUserDeleted
	default:
		return EventUnknown
	}
}
