// Package conversation holds the live state of channels, boards and threads
// and fans mutations out to stream subscribers.
//
// # Store
//
// The Store is the single source of truth for messages. Writes to one
// channel or one board are serialized; distinct resources proceed in
// parallel. Every successful write is published on the Broadcaster before
// the write returns, so a subscriber observes events in append order.
//
//	st := conversation.NewStore(conversation.StoreConfig{Persister: db})
//	msg, err := st.AppendChannelMessage(ctx, "general", conversation.Message{
//		Author:  "alice",
//		Content: "hello",
//	})
//
// # Streams
//
// SubscribeChannel and SubscribeBoard register a subscription and queue a
// history snapshot as its first event while the resource is locked against
// writers. Live events follow without gaps or duplicates.
//
// Each subscription has a bounded queue. When it is full the oldest events
// are dropped and a single resync event is queued in their place; the client
// should refetch history. A ping is emitted after 30 seconds of silence.
//
// # Membership
//
// Bots are active in a channel only when added. The everyone channel is the
// exception: every roster bot is active there and the membership cannot be
// changed.
package conversation
