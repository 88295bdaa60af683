// ABOUTME: Stream event types delivered to subscribers of a channel or board
// ABOUTME: Payload structs are what the SSE layer serializes as event data

package conversation

// EventType names a stream event.
type EventType string

const (
	EventHistory      EventType = "history"
	EventMessage      EventType = "message"
	EventThreadUpdate EventType = "thread_update"
	EventBoardUpdate  EventType = "board_update"
	EventResync       EventType = "resync"
	EventPing         EventType = "ping"
)

// Event is one item on a subscriber stream.
type Event struct {
	Type     EventType `json:"type"`
	Resource string    `json:"resource"`
	Data     any       `json:"data,omitempty"`
}

// ChannelHistory is the history payload for a channel stream.
type ChannelHistory struct {
	Channel   string    `json:"channel"`
	Messages  []Message `json:"messages"`
	Truncated bool      `json:"truncated,omitempty"`
}

// BoardHistory is the history payload for a board stream.
type BoardHistory struct {
	Board   Board    `json:"board"`
	Threads []Thread `json:"threads"`
}

// ChannelMessage is the payload of a message event on a channel stream.
type ChannelMessage struct {
	Channel string  `json:"channel"`
	Message Message `json:"message"`
}

// ThreadUpdate is the payload of a thread_update event. Message is set when
// the update was caused by a reply.
type ThreadUpdate struct {
	Thread  ThreadSummary `json:"thread"`
	Message *Message      `json:"message,omitempty"`
}

// BoardUpdate is the payload of a board_update event, sent when a board or
// one of its threads is created.
type BoardUpdate struct {
	Board  Board   `json:"board"`
	Thread *Thread `json:"thread,omitempty"`
}

// Resync tells the subscriber its queue overflowed and it should refetch history.
type Resync struct {
	Dropped int `json:"dropped"`
}

// ChannelResource is the broadcaster key for a channel.
func ChannelResource(name string) string {
	return "channel:" + name
}

// BoardResource is the broadcaster key for a board.
func BoardResource(id string) string {
	return "board:" + id
}
