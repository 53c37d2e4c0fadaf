package broadcaster

import (
	"go.uber.org/zap"

	"github.com/luciancaetano/scenecast"
	"github.com/luciancaetano/scenecast/internal/protocol"
)

// dispatch applies one inbound command. It runs on the sender's read
// goroutine, so commands from one client are applied in arrival order.
func (s *Server) dispatch(client *Client, cmd *protocol.Command) {
	switch cmd.Type {
	case protocol.JoinRoom:
		if name, ok := s.roomName(client, cmd); ok {
			s.rooms.Join(client, name)
		}

	case protocol.CreateRoom:
		if name, ok := s.roomName(client, cmd); ok {
			s.rooms.Create(client, name)
		}

	case protocol.LeaveRoom:
		s.rooms.Leave(client)

	case protocol.ListRooms:
		s.reply(client, protocol.ListRooms, protocol.EncodeStringArray(s.rooms.Names()))

	case protocol.ListRoomClients:
		name, ok := s.roomName(client, cmd)
		if !ok {
			return
		}
		ids, found := s.rooms.Members(name)
		if !found {
			client.log.Warn("listing clients of unknown room", zap.String("room", name))
		}
		s.reply(client, protocol.ListRoomClients, protocol.EncodeStringArray(ids))

	case protocol.ListClients:
		ids, rooms := s.rooms.Directory()
		enc := protocol.NewEncoder()
		enc.WriteStringArray(ids)
		enc.WriteStringArray(rooms)
		s.reply(client, protocol.ListClients, enc.Bytes())

	case protocol.DeleteRoom:
		if name, ok := s.roomName(client, cmd); ok && !s.rooms.Delete(name) {
			client.log.Warn("deleting unknown room", zap.String("room", name))
		}

	case protocol.ClearRoom:
		if name, ok := s.roomName(client, cmd); ok && !s.rooms.Clear(name) {
			client.log.Warn("clearing unknown room", zap.String("room", name))
		}

	case protocol.ClearContent:
		if !s.rooms.ClearContent(client, cmd) {
			client.log.Warn("clear content outside a room")
		}

	case protocol.Content:
		client.log.Debug("client acknowledged content")

	default:
		if !s.rooms.Publish(client, cmd) {
			client.log.Warn("dropping command outside a room", zap.Stringer("type", cmd.Type))
			return
		}
		if h, ok := s.handlers.Load(cmd.Type); ok {
			h.(HandlerFn)(client, cmd)
		}
	}
}

// roomName decodes the room name carried by a room command.
func (s *Server) roomName(client *Client, cmd *protocol.Command) (string, bool) {
	name, _, err := protocol.DecodeString(cmd.Data, 0)
	if err != nil {
		client.log.Warn(scenecast.ErrInvalidMessageFormat,
			zap.Stringer("type", cmd.Type), zap.Error(err))
		s.metrics.Error("malformed_payload")
		return "", false
	}
	return name, true
}

func (s *Server) reply(client *Client, t protocol.MessageType, data []byte) {
	s.rooms.Reply(client, s.ids.NewCommand(t, data, 0))
}
