package protocol

import "sync/atomic"

// FirstCommandID is the first id handed out by a fresh IDAllocator. Peers
// expect auto-assigned ids to start here.
const FirstCommandID uint32 = 100

// Command is the unit exchanged between peers. Data is opaque to this package;
// its shape is determined by Type. Commands are not mutated after construction.
type Command struct {
	Type MessageType
	ID   uint32
	Data []byte
}

// IDAllocator hands out increasing command ids. It is safe for concurrent
// use. Share one allocator between every site that builds commands.
//
// Id 0 means "unassigned" on the wire, so it is never handed out: the zero
// value starts at 1, and after 4294967295 the counter wraps to 1.
type IDAllocator struct {
	next atomic.Uint32
}

// NewIDAllocator returns an allocator whose first id is start.
func NewIDAllocator(start uint32) *IDAllocator {
	a := &IDAllocator{}
	a.next.Store(start)
	return a
}

// Next returns the next nonzero id.
func (a *IDAllocator) Next() uint32 {
	for {
		if id := a.next.Add(1) - 1; id != 0 {
			return id
		}
	}
}

// NewCommand builds a command. An id of 0 is replaced by the next allocator
// value; any other id is used verbatim. A nil allocator never replaces ids.
func (a *IDAllocator) NewCommand(t MessageType, data []byte, id uint32) *Command {
	if id == 0 && a != nil {
		id = a.Next()
	}
	if data == nil {
		data = []byte{}
	}
	return &Command{Type: t, ID: id, Data: data}
}
