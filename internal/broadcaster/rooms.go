package broadcaster

import (
	"context"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/luciancaetano/scenecast"
	"github.com/luciancaetano/scenecast/internal/metrics"
	"github.com/luciancaetano/scenecast/internal/protocol"
)

type room struct {
	name    string
	members map[string]*Client
	content []*protocol.Command
}

// Rooms tracks connected clients, the rooms they share and each room's
// stored content. One mutex guards all of it; fan-out happens while that
// mutex is held so every member observes commands in the same order.
type Rooms struct {
	mu        sync.Mutex
	rooms     map[string]*room
	clients   map[string]*Client
	keepEmpty bool
	ids       *protocol.IDAllocator
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// NewRooms returns an empty registry. Commands it generates take their ids
// from ids.
func NewRooms(ids *protocol.IDAllocator, keepEmpty bool, log *zap.Logger, m *metrics.Metrics) *Rooms {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rooms{
		rooms:     make(map[string]*room),
		clients:   make(map[string]*Client),
		keepEmpty: keepEmpty,
		ids:       ids,
		log:       log,
		metrics:   m,
	}
}

// Add registers a connected client.
func (r *Rooms) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID()] = c
}

// Remove takes c out of its room and forgets it.
func (r *Rooms) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c)
	delete(r.clients, c.ID())
}

// Client returns the connected client with the given id.
func (r *Rooms) Client(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Clients returns a snapshot of the connected clients.
func (r *Rooms) Clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Names returns the room names in ascending order.
func (r *Rooms) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked()
}

func (r *Rooms) namesLocked() []string {
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Content returns a copy of the commands stored for room name.
func (r *Rooms) Content(name string) []*protocol.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[name]
	if !ok {
		return nil
	}
	return append([]*protocol.Command(nil), rm.content...)
}

// Join moves c into room name, creating the room when needed. Joining an
// existing room replays its content; joining a new room sends an empty
// CONTENT command asking the client to upload its scene.
func (r *Rooms) Join(c *Client, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[name]; ok {
		if c.Room() == name {
			return
		}
		r.leaveLocked(c)
		r.addMemberLocked(rm, c)
		r.deliverLocked(c, append([]*protocol.Command(nil), rm.content...))
		r.log.Info("client joined room", zap.String("client_id", c.ID()),
			zap.String("room", name), zap.Int("replayed", len(rm.content)))
		return
	}

	r.leaveLocked(c)
	rm := r.createLocked(name)
	r.addMemberLocked(rm, c)
	r.deliverLocked(c, []*protocol.Command{r.ids.NewCommand(protocol.Content, nil, 0)})
	r.log.Info("client created room", zap.String("client_id", c.ID()), zap.String("room", name))
}

// Create creates room name and moves c into it. It reports false, leaving c
// where it was, when the room already exists.
func (r *Rooms) Create(c *Client, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[name]; ok {
		r.log.Warn("room already exists", zap.String("client_id", c.ID()), zap.String("room", name))
		return false
	}

	r.leaveLocked(c)
	rm := r.createLocked(name)
	r.addMemberLocked(rm, c)
	r.log.Info("client created room", zap.String("client_id", c.ID()), zap.String("room", name))
	return true
}

// Leave takes c out of its room.
func (r *Rooms) Leave(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c)
}

// Delete removes room name. Its members become roomless. It reports
// whether the room existed.
func (r *Rooms) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return false
	}
	for _, m := range rm.members {
		m.setRoom("")
	}
	delete(r.rooms, name)
	r.metrics.SetRooms(len(r.rooms))
	r.log.Info("room deleted", zap.String("room", name), zap.Int("members", len(rm.members)))
	return true
}

// Clear drops the content stored for room name. It reports whether the
// room existed.
func (r *Rooms) Clear(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return false
	}
	rm.content = nil
	return true
}

// ClearContent drops the content of the sender's room and forwards cmd to
// the other members. It reports false when the sender is not in a room.
func (r *Rooms) ClearContent(sender *Client, cmd *protocol.Command) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[sender.Room()]
	if !ok {
		return false
	}
	rm.content = nil
	r.forwardLocked(rm, sender, cmd)
	return true
}

// Publish appends cmd to the sender's room content and forwards it to the
// other members. It reports false when the sender is not in a room.
func (r *Rooms) Publish(sender *Client, cmd *protocol.Command) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[sender.Room()]
	if !ok {
		return false
	}
	rm.content = append(rm.content, cmd)
	r.forwardLocked(rm, sender, cmd)
	return true
}

// Members returns the ids of the clients in room name, sorted.
func (r *Rooms) Members(name string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil, false
	}
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, true
}

// Directory returns every client id, sorted, with the index-aligned name of
// the room each is in.
func (r *Rooms) Directory() (ids []string, rooms []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids = make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rooms = make([]string, len(ids))
	for i, id := range ids {
		rooms[i] = r.clients[id].Room()
	}
	return ids, rooms
}

// Reply queues cmd for c alone.
func (r *Rooms) Reply(c *Client, cmd *protocol.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliverLocked(c, []*protocol.Command{cmd})
}

func (r *Rooms) createLocked(name string) *room {
	rm := &room{name: name, members: make(map[string]*Client)}
	r.rooms[name] = rm
	r.metrics.SetRooms(len(r.rooms))
	return rm
}

func (r *Rooms) addMemberLocked(rm *room, c *Client) {
	rm.members[c.ID()] = c
	c.setRoom(rm.name)
}

func (r *Rooms) leaveLocked(c *Client) {
	name := c.Room()
	if name == "" {
		return
	}
	c.setRoom("")

	rm, ok := r.rooms[name]
	if !ok {
		return
	}
	delete(rm.members, c.ID())
	if len(rm.members) == 0 && !r.keepEmpty {
		delete(r.rooms, name)
		r.metrics.SetRooms(len(r.rooms))
		r.log.Info("empty room removed", zap.String("room", name))
	}
}

func (r *Rooms) forwardLocked(rm *room, sender *Client, cmd *protocol.Command) {
	batch := []*protocol.Command{cmd}
	for id, m := range rm.members {
		if id == sender.ID() {
			continue
		}
		r.deliverLocked(m, batch)
	}
}

// deliverLocked queues batch for c. A client whose queue is full has fallen
// too far behind its room and is disconnected.
func (r *Rooms) deliverLocked(c *Client, batch []*protocol.Command) {
	err := c.enqueue(batch)
	if err == nil || err == errConnectionClosed {
		return
	}
	r.log.Warn("dropping slow client", zap.String("client_id", c.ID()), zap.Error(err))
	r.metrics.Error("slow_client")
	go c.CloseWithCode(context.Background(), websocket.CloseTryAgainLater, scenecast.ErrSendQueueFull)
}
