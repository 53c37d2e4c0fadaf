package protocol

import (
	"fmt"
	"math"
)

// MessageType identifies the purpose of a Command. The numeric values are wire
// constants shared with existing peers and must never be renumbered.
type MessageType uint16

// Room and session management.
const (
	JoinRoom        MessageType = 1
	CreateRoom      MessageType = 2
	LeaveRoom       MessageType = 3
	ListRooms       MessageType = 4
	Content         MessageType = 5
	ClearContent    MessageType = 6
	DeleteRoom      MessageType = 7
	ClearRoom       MessageType = 8
	ListRoomClients MessageType = 9
	ListClients     MessageType = 10
)

// Scene content operations.
const (
	SceneCommand     MessageType = 100
	Transform        MessageType = 101
	Delete           MessageType = 102
	Mesh             MessageType = 103
	Material         MessageType = 104
	Camera           MessageType = 105
	Light            MessageType = 106
	MeshConnection   MessageType = 107
	Rename           MessageType = 108
	Duplicate        MessageType = 109
	SendToTrash      MessageType = 110
	RestoreFromTrash MessageType = 111
	Texture          MessageType = 112
)

var messageTypeNames = map[MessageType]string{
	JoinRoom:         "JOIN_ROOM",
	CreateRoom:       "CREATE_ROOM",
	LeaveRoom:        "LEAVE_ROOM",
	ListRooms:        "LIST_ROOMS",
	Content:          "CONTENT",
	ClearContent:     "CLEAR_CONTENT",
	DeleteRoom:       "DELETE_ROOM",
	ClearRoom:        "CLEAR_ROOM",
	ListRoomClients:  "LIST_ROOM_CLIENTS",
	ListClients:      "LIST_CLIENTS",
	SceneCommand:     "COMMAND",
	Transform:        "TRANSFORM",
	Delete:           "DELETE",
	Mesh:             "MESH",
	Material:         "MATERIAL",
	Camera:           "CAMERA",
	Light:            "LIGHT",
	MeshConnection:   "MESHCONNECTION",
	Rename:           "RENAME",
	Duplicate:        "DUPLICATE",
	SendToTrash:      "SEND_TO_TRASH",
	RestoreFromTrash: "RESTORE_FROM_TRASH",
	Texture:          "TEXTURE",
}

// String returns the wire name of the message type.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint16(t))
}

// Valid reports whether t is one of the enumerated message types.
func (t MessageType) Valid() bool {
	_, ok := messageTypeNames[t]
	return ok
}

// IsRoomMessage reports whether t belongs to the room/session management band.
func (t MessageType) IsRoomMessage() bool {
	return t >= JoinRoom && t <= ListClients
}

// IsContentMessage reports whether t belongs to the scene content band.
func (t MessageType) IsContentMessage() bool {
	return t >= SceneCommand && t <= Texture
}

// ParseMessageType converts a raw code into a MessageType. Codes that do not fit
// in 16 bits or are not enumerated fail with ErrUnknownMessageType.
func ParseMessageType(code uint64) (MessageType, error) {
	if code > math.MaxUint16 {
		return 0, fmt.Errorf("%w: code %d exceeds 16 bits", ErrUnknownMessageType, code)
	}
	t := MessageType(code)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownMessageType, code)
	}
	return t, nil
}

// MessageTypes returns every enumerated type in ascending code order.
func MessageTypes() []MessageType {
	types := make([]MessageType, 0, len(messageTypeNames))
	for t := JoinRoom; t <= ListClients; t++ {
		types = append(types, t)
	}
	for t := SceneCommand; t <= Texture; t++ {
		types = append(types, t)
	}
	return types
}
