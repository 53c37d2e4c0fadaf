// Package scenecast relays scene edits between collaborating 3D editors.
//
// Editors connect to a broadcaster, join a named room and stream commands
// describing their scene (transforms, meshes, materials, cameras, lights,
// renames and so on). The broadcaster stores each room's commands and forwards
// them to the other members; a client joining a room later receives the stored
// commands first, so every member converges on the same scene.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/scenecast"
//	    "github.com/luciancaetano/scenecast/broadcast"
//	)
//
//	server := broadcast.New(broadcast.NewConfig(
//	    scenecast.DefaultTCPAddress, scenecast.DefaultHTTPAddress,
//	    broadcast.DefaultRateLimitConfig(), broadcast.AllowOrigins("https://editor.example.com"),
//	    nil, nil))
//
//	// Observe content commands after they have been stored and forwarded.
//	server.RegisterHandler(ctx, scenecast.Rename, func(client scenecast.Client, cmd *scenecast.Command) {
//	    log.Printf("%s renamed an object in %s", client.ID(), client.Room())
//	})
//
//	server.Start(ctx)
//
// # Frame Format
//
// Every command travels in one frame, all integers little-endian:
//
//	[8 bytes: payload length (uint64)][4 bytes: id (uint32)][2 bytes: type (uint16)][payload]
//
// Raw TCP clients send frames back to back. WebSocket clients send frames in
// binary messages on the /ws path; a frame may span several messages.
//
// Payloads are built from a small set of field shapes: uint32, bool (4 bytes),
// float32, length-prefixed UTF-8 strings, float vectors and colors, and
// count-prefixed arrays of those.
//
// # Rooms
//
// Message types 1 to 10 manage rooms and are handled by the server:
//
//   - JOIN_ROOM, CREATE_ROOM, LEAVE_ROOM, DELETE_ROOM
//   - CLEAR_ROOM, CLEAR_CONTENT
//   - LIST_ROOMS, LIST_ROOM_CLIENTS, LIST_CLIENTS
//
// Message types 100 and up carry scene content and are stored per room.
//
// # Rate Limiting
//
// Each client has an independent token bucket. The default allows 1000
// commands per second with a burst of 2000, sized for a scene upload. A
// client exceeding it is disconnected; WebSocket clients receive close code
// 1008 (Policy Violation).
//
// # Important
//
//   - Commands from one client are applied in the order they arrive
//   - No ordering is guaranteed between different clients
//   - A client whose send queue overflows is disconnected
//   - Configure allowed origins in production (never use broadcast.AllOrigins() in production)
package scenecast
