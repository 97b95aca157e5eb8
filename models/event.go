package models

import "time"

// EventKind は運営者画面へ送る一方向通知の種類
type EventKind string

const (
	EventSessionStarted       EventKind = "session_started"
	EventSessionLoaded        EventKind = "session_loaded"
	EventSessionStopping      EventKind = "session_stopping"
	EventSessionStopped       EventKind = "session_stopped"
	EventTurnEnded            EventKind = "turn_ended"
	EventClientConnected      EventKind = "client_connected"
	EventWaitingList          EventKind = "waiting_list"
	EventChatMessage          EventKind = "chat_message"
	EventTransportFailure     EventKind = "transport_failure"
	EventFatalCommunication   EventKind = "fatal_communication"
	EventAgentsNotConnected   EventKind = "agents_not_connected"
	EventSnapshotSaved        EventKind = "snapshot_saved"
	EventSideOperationApplied EventKind = "side_operation_applied"
)

// Event はUIコラボレーターへの通知
type Event struct {
	ID        string                 `json:"id"`
	Kind      EventKind              `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChatMessage は参加者と運営者の間の自由文メッセージ
type ChatMessage struct {
	User string `json:"user"`
	Text string `json:"text"`
}
