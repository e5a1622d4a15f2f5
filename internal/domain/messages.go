package domain

import "encoding/json"

// WebSocket message types from client.
const (
	MsgTypeJoinRoom    = "join_room"
	MsgTypeSendMessage = "send_message"
	MsgTypeHostAction  = "host_action"
	MsgTypePing        = "ping"
)

// WebSocket event types to client.
const (
	EventRoomInfo            = "room_info"
	EventChatHistory         = "chat_history"
	EventSystemMessage       = "system_message"
	EventUpdateUserList      = "update_user_list"
	EventHostDisconnectGrace = "host_disconnect_grace"
	EventHostReturned        = "host_returned"
	EventNewHost             = "new_host"
	EventReceiveMessage      = "receive_message"
	EventRoomUpdated         = "room_updated"
	EventRoomDeleted         = "room_deleted"
	EventError               = "error"
	EventPong                = "pong"
)

// Host actions.
const (
	HostActionRenameRoom    = "rename_room"
	HostActionToggleCodeVis = "toggle_code_visibility"
	HostActionDeleteRoom    = "delete_room"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinRoomMessage struct {
	Type     string `json:"type"`
	RoomCode string `json:"room_code"`
	Username string `json:"username"`
}

type SendMessageMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type HostActionMessage struct {
	Type    string          `json:"type"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Server -> Client messages

type RoomInfoMessage struct {
	Type          string `json:"type"`
	RoomName      string `json:"room_name"`
	RoomCode      string `json:"room_code"`
	IsCodeVisible bool   `json:"is_code_visible"`
	IsHost        bool   `json:"is_host"`
	Username      string `json:"username"`
}

type ChatHistoryMessage struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

type SystemMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewSystemMessage(text string) *SystemMessage {
	return &SystemMessage{Type: EventSystemMessage, Text: text}
}

type UpdateUserListMessage struct {
	Type  string        `json:"type"`
	Users []RosterEntry `json:"users"`
}

type HostDisconnectGraceMessage struct {
	Type        string `json:"type"`
	Username    string `json:"username"`
	SecondsLeft int    `json:"seconds_left"`
}

type HostReturnedMessage struct {
	Type string `json:"type"`
}

type NewHostMessage struct {
	Type string `json:"type"`
	Sid  string `json:"sid"`
}

type ReceiveMessageMessage struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	IsOwn     bool   `json:"is_own"`
}

type RoomUpdatedMessage struct {
	Type  string      `json:"type"`
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

type RoomDeletedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorMessage(message string) *ErrorMessage {
	return &ErrorMessage{Type: EventError, Message: message}
}
