package scenecast

import (
	"context"

	"github.com/luciancaetano/scenecast/internal/protocol"
)

// MessageType identifies the purpose of a Command.
type MessageType = protocol.MessageType

// Command is the unit exchanged between peers: a message type, an id and an
// opaque payload.
type Command = protocol.Command

// Message types, re-exported for handlers registered from outside the module.
const (
	JoinRoom         = protocol.JoinRoom
	CreateRoom       = protocol.CreateRoom
	LeaveRoom        = protocol.LeaveRoom
	ListRooms        = protocol.ListRooms
	Content          = protocol.Content
	ClearContent     = protocol.ClearContent
	DeleteRoom       = protocol.DeleteRoom
	ClearRoom        = protocol.ClearRoom
	ListRoomClients  = protocol.ListRoomClients
	ListClients      = protocol.ListClients
	SceneCommand     = protocol.SceneCommand
	Transform        = protocol.Transform
	Delete           = protocol.Delete
	Mesh             = protocol.Mesh
	Material         = protocol.Material
	Camera           = protocol.Camera
	Light            = protocol.Light
	MeshConnection   = protocol.MeshConnection
	Rename           = protocol.Rename
	Duplicate        = protocol.Duplicate
	SendToTrash      = protocol.SendToTrash
	RestoreFromTrash = protocol.RestoreFromTrash
	Texture          = protocol.Texture
)

// LightType is the kind of light described by a Light payload.
type LightType = protocol.LightType

// SensorFitMode selects the sensor dimension used by a Camera payload.
type SensorFitMode = protocol.SensorFitMode

const (
	LightSpot           = protocol.LightSpot
	LightSun            = protocol.LightSun
	LightPoint          = protocol.LightPoint
	SensorFitAuto       = protocol.SensorFitAuto
	SensorFitVertical   = protocol.SensorFitVertical
	SensorFitHorizontal = protocol.SensorFitHorizontal
)

// Server defines a broadcasting server for collaborative scene editing.
//
// Clients connect over raw TCP or WebSocket and exchange framed commands.
// Room management commands are handled by the server itself; scene content
// commands are stored in the sender's room and forwarded to the other members.
//
// Example usage:
//
//	import "github.com/luciancaetano/scenecast/broadcast"
//
//	server := broadcast.New(broadcast.NewConfig("0.0.0.0:12800", "0.0.0.0:12801",
//	    broadcast.DefaultRateLimitConfig(), broadcast.AllOrigins(), nil, nil))
//
//	server.RegisterHandler(ctx, scenecast.Rename, func(client scenecast.Client, cmd *scenecast.Command) {
//	    log.Printf("client %s renamed an object", client.ID())
//	})
//
//	server.Start(ctx)
type Server interface {
	// Start binds the configured listeners and begins accepting clients.
	//
	// Returns an error if the server is already running or if a listener
	// cannot be bound.
	Start(ctx context.Context) error

	// Stop closes the listeners and every client connection.
	Stop(ctx context.Context) error

	// RegisterHandler registers an extra handler for a scene content message
	// type. Handlers run on the sending client's read goroutine after the
	// command has been stored and forwarded, so they see commands in order.
	//
	// Returns an error for room management types, which the server owns.
	RegisterHandler(ctx context.Context, t MessageType, handler func(client Client, cmd *Command)) error

	// Broadcast queues cmd for every connected client.
	Broadcast(ctx context.Context, cmd *Command) error

	// NewCommand builds a command whose id comes from the server's allocator.
	NewCommand(t MessageType, data []byte) *Command
}

// Client represents a connected peer.
//
// Each client has a unique identifier and maintains its own connection state.
// The client's context is cancelled when the connection closes.
type Client interface {
	// ID returns the unique identifier assigned when the client connected.
	ID() string

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// Room returns the name of the room the client is in, or "" when it is
	// not in a room.
	Room() string

	// Context returns the client's lifecycle context.
	//
	// Example:
	//
	//	go func() {
	//	    <-client.Context().Done()
	//	    log.Printf("Client %s disconnected", client.ID())
	//	}()
	Context() context.Context

	// Send queues cmd for delivery to the client.
	//
	// Returns an error if the connection is closed or the context is cancelled.
	Send(ctx context.Context, cmd *Command) error

	// Close closes the client connection.
	Close(ctx context.Context) error

	// IsAlive returns true if the connection is still active.
	IsAlive() bool
}
