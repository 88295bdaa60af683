// ABOUTME: Authoritative in-memory conversation state for channels, boards and threads
// ABOUTME: Serializes writes per resource and publishes each mutation before releasing the lock

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/cool-squad/internal/metrics"
)

// DefaultEveryoneChannel is the channel every roster bot belongs to.
const DefaultEveryoneChannel = "everyone"

// Persister is the durable storage collaborator. Each call happens inside the
// resource's write lock before the in-memory mutation; an error aborts it.
type Persister interface {
	SaveChannelMessage(ctx context.Context, channel string, msg Message) error
	SaveChannelBots(ctx context.Context, channel string, bots []string) error
	SaveBoard(ctx context.Context, board Board) error
	SaveThread(ctx context.Context, thread Thread) error
	SaveThreadMessage(ctx context.Context, boardID, threadID string, msg Message) error
}

// BoardSnapshot is a board with all its threads, used for restore.
type BoardSnapshot struct {
	Board   Board
	Threads []Thread
}

// Snapshot is the full conversation state loaded from persistence.
type Snapshot struct {
	Channels []Channel
	Boards   []BoardSnapshot
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// EveryoneChannel defaults to DefaultEveryoneChannel.
	EveryoneChannel string
	// HistoryLimit caps the messages sent in a channel history event. 0 means unlimited.
	HistoryLimit int
	Persister    Persister
	Broadcaster  *Broadcaster
	Logger       *slog.Logger
}

type channelState struct {
	mu       sync.RWMutex
	messages []Message
	bots     map[string]struct{}
}

type boardState struct {
	mu      sync.RWMutex
	board   Board
	threads map[string]*Thread
}

// Store owns channels, boards and threads. The global lock only guards the
// resource maps; message sequences are guarded by their resource's lock.
// Lock order is always Store.mu before a resource lock.
type Store struct {
	mu       sync.RWMutex
	channels map[string]*channelState
	boards   map[string]*boardState
	roster   []string

	everyone     string
	historyLimit int
	persister    Persister
	broadcaster  *Broadcaster
	logger       *slog.Logger
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	everyone := cfg.EveryoneChannel
	if everyone == "" {
		everyone = DefaultEveryoneChannel
	}
	b := cfg.Broadcaster
	if b == nil {
		b = NewBroadcaster(BroadcasterConfig{Logger: logger})
	}
	return &Store{
		channels:     make(map[string]*channelState),
		boards:       make(map[string]*boardState),
		everyone:     everyone,
		historyLimit: cfg.HistoryLimit,
		persister:    cfg.Persister,
		broadcaster:  b,
		logger:       logger.With("component", "conversation"),
	}
}

// Broadcaster returns the broadcaster events are published on.
func (s *Store) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// EveryoneChannel returns the name of the channel with immutable membership.
func (s *Store) EveryoneChannel() string {
	return s.everyone
}

// stamp fills in server-assigned fields.
func stamp(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

func validateMessage(msg Message) error {
	if strings.TrimSpace(msg.Author) == "" {
		return fmt.Errorf("%w: author is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidArgument)
	}
	return nil
}

func validateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, kind)
	}
	return nil
}

// channel returns the channel state, creating it when create is set.
func (s *Store) channel(name string, create bool) *channelState {
	s.mu.RLock()
	st, ok := s.channels[name]
	s.mu.RUnlock()
	if ok || !create {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.channels[name]; ok {
		return st
	}
	st = &channelState{bots: make(map[string]struct{})}
	s.channels[name] = st
	return st
}

func (s *Store) board(id string) *boardState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boards[id]
}

// AppendChannelMessage appends msg to channel, creating the channel if needed,
// and publishes a message event before returning.
func (s *Store) AppendChannelMessage(ctx context.Context, channel string, msg Message) (Message, error) {
	if err := validateName("channel", channel); err != nil {
		return Message{}, err
	}
	if err := validateMessage(msg); err != nil {
		return Message{}, err
	}

	st := s.channel(channel, true)
	st.mu.Lock()
	defer st.mu.Unlock()

	msg = stamp(msg)
	if s.persister != nil {
		if err := s.persister.SaveChannelMessage(ctx, channel, msg); err != nil {
			return Message{}, fmt.Errorf("persisting channel message: %w", err)
		}
	}
	st.messages = append(st.messages, msg)

	s.broadcaster.Publish(ChannelResource(channel), Event{
		Type:     EventMessage,
		Resource: ChannelResource(channel),
		Data:     ChannelMessage{Channel: channel, Message: msg},
	})
	metrics.MessagesAppended.WithLabelValues("channel").Inc()

	s.logger.Debug("channel message appended",
		"channel", channel,
		"author", msg.Author,
		"message_id", msg.ID)
	return msg, nil
}

// ListChannels returns channel names in sorted order.
func (s *Store) ListChannels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.channels))
}

// GetChannel returns a copy of the channel. Unknown channels come back empty.
func (s *Store) GetChannel(name string) Channel {
	ch := Channel{Name: name, Messages: []Message{}, Bots: s.ChannelBots(name)}
	st := s.channel(name, false)
	if st == nil {
		return ch
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	ch.Messages = slices.Clone(st.messages)
	return ch
}

// RecentChannelMessages returns at most n of the newest messages, oldest first.
func (s *Store) RecentChannelMessages(name string, n int) []Message {
	st := s.channel(name, false)
	if st == nil {
		return []Message{}
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return tail(st.messages, n)
}

func tail(msgs []Message, n int) []Message {
	if n <= 0 || n >= len(msgs) {
		return slices.Clone(msgs)
	}
	return slices.Clone(msgs[len(msgs)-n:])
}

// SetRoster records the known bot names. Every roster bot is active in the
// everyone channel.
func (s *Store) SetRoster(names []string) {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	s.mu.Lock()
	s.roster = slices.Compact(sorted)
	s.mu.Unlock()
}

// Roster returns the known bot names.
func (s *Store) Roster() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.roster)
}

func (s *Store) inRoster(bot string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := slices.BinarySearch(s.roster, bot)
	return found
}

// ChannelBots lists the bots active in a channel.
func (s *Store) ChannelBots(name string) []string {
	if name == s.everyone {
		return s.Roster()
	}
	st := s.channel(name, false)
	if st == nil {
		return []string{}
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return slices.Sorted(maps.Keys(st.bots))
}

// IsBotActive reports whether bot is active in channel.
func (s *Store) IsBotActive(channel, bot string) bool {
	if channel == s.everyone {
		return s.inRoster(bot)
	}
	st := s.channel(channel, false)
	if st == nil {
		return false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	_, ok := st.bots[bot]
	return ok
}

// AddChannelBot activates bot in channel. The everyone channel is rejected.
func (s *Store) AddChannelBot(ctx context.Context, channel, bot string) error {
	return s.changeMembership(ctx, channel, bot, true)
}

// RemoveChannelBot deactivates bot in channel. The everyone channel is rejected
// with ErrMembershipImmutable and its membership is left unchanged.
func (s *Store) RemoveChannelBot(ctx context.Context, channel, bot string) error {
	return s.changeMembership(ctx, channel, bot, false)
}

func (s *Store) changeMembership(ctx context.Context, channel, bot string, active bool) error {
	if err := validateName("channel", channel); err != nil {
		return err
	}
	if err := validateName("bot", bot); err != nil {
		return err
	}
	if channel == s.everyone {
		return fmt.Errorf("channel %q: %w", channel, ErrMembershipImmutable)
	}
	if !s.inRoster(bot) {
		return fmt.Errorf("bot %q: %w", bot, ErrNotFound)
	}

	st := s.channel(channel, active)
	if st == nil {
		return fmt.Errorf("bot %q in channel %q: %w", bot, channel, ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	_, present := st.bots[bot]
	if !active && !present {
		return fmt.Errorf("bot %q in channel %q: %w", bot, channel, ErrNotFound)
	}
	if active == present {
		return nil
	}

	next := maps.Clone(st.bots)
	if active {
		next[bot] = struct{}{}
	} else {
		delete(next, bot)
	}
	if s.persister != nil {
		if err := s.persister.SaveChannelBots(ctx, channel, slices.Sorted(maps.Keys(next))); err != nil {
			return fmt.Errorf("persisting channel bots: %w", err)
		}
	}
	st.bots = next

	s.logger.Info("channel membership changed", "channel", channel, "bot", bot, "active", active)
	return nil
}

// CreateBoard creates a board. Creating an existing board returns it unchanged.
func (s *Store) CreateBoard(ctx context.Context, id, name, description string) (Board, error) {
	if err := validateName("board id", id); err != nil {
		return Board{}, err
	}
	if name == "" {
		name = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bs, ok := s.boards[id]; ok {
		return bs.board, nil
	}

	board := Board{ID: id, Name: name, Description: description}
	if s.persister != nil {
		if err := s.persister.SaveBoard(ctx, board); err != nil {
			return Board{}, fmt.Errorf("persisting board: %w", err)
		}
	}
	s.boards[id] = &boardState{board: board, threads: make(map[string]*Thread)}

	s.broadcaster.Publish(BoardResource(id), Event{
		Type:     EventBoardUpdate,
		Resource: BoardResource(id),
		Data:     BoardUpdate{Board: board},
	})
	s.logger.Info("board created", "board", id)
	return board, nil
}

// ListBoards returns all boards sorted by id.
func (s *Store) ListBoards() []Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	boards := make([]Board, 0, len(s.boards))
	for _, id := range slices.Sorted(maps.Keys(s.boards)) {
		boards = append(boards, s.boards[id].board)
	}
	return boards
}

// GetBoard returns the board with the given id.
func (s *Store) GetBoard(id string) (Board, bool) {
	bs := s.board(id)
	if bs == nil {
		return Board{}, false
	}
	return bs.board, true
}

// CreateThread creates a thread on board with first as its opening message
// and publishes a board_update event.
func (s *Store) CreateThread(ctx context.Context, boardID, title string, first Message, tags []string) (Thread, error) {
	if err := validateName("title", title); err != nil {
		return Thread{}, err
	}
	if err := validateMessage(first); err != nil {
		return Thread{}, err
	}
	bs := s.board(boardID)
	if bs == nil {
		return Thread{}, fmt.Errorf("board %q: %w", boardID, ErrNotFound)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	first = stamp(first)
	id := uuid.New().String()
	for _, taken := bs.threads[id]; taken; _, taken = bs.threads[id] {
		id = uuid.New().String()
	}
	thread := &Thread{
		ID:        id,
		BoardID:   boardID,
		Title:     strings.TrimSpace(title),
		Author:    first.Author,
		CreatedAt: first.Timestamp,
		Tags:      normalizeTags(tags),
		Messages:  []Message{first},
	}

	if s.persister != nil {
		if err := s.persister.SaveThread(ctx, *thread); err != nil {
			return Thread{}, fmt.Errorf("persisting thread: %w", err)
		}
		if err := s.persister.SaveThreadMessage(ctx, boardID, id, first); err != nil {
			return Thread{}, fmt.Errorf("persisting thread message: %w", err)
		}
	}
	bs.threads[id] = thread

	out := thread.clone()
	s.broadcaster.Publish(BoardResource(boardID), Event{
		Type:     EventBoardUpdate,
		Resource: BoardResource(boardID),
		Data:     BoardUpdate{Board: bs.board, Thread: &out},
	})
	metrics.MessagesAppended.WithLabelValues("thread").Inc()

	s.logger.Info("thread created", "board", boardID, "thread_id", id, "title", thread.Title)
	return thread.clone(), nil
}

// AppendThreadMessage appends msg to a thread and publishes a thread_update event.
func (s *Store) AppendThreadMessage(ctx context.Context, boardID, threadID string, msg Message) (Message, error) {
	if err := validateMessage(msg); err != nil {
		return Message{}, err
	}
	bs := s.board(boardID)
	if bs == nil {
		return Message{}, fmt.Errorf("board %q: %w", boardID, ErrNotFound)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	thread, ok := bs.threads[threadID]
	if !ok {
		return Message{}, fmt.Errorf("thread %q on board %q: %w", threadID, boardID, ErrNotFound)
	}

	msg = stamp(msg)
	if s.persister != nil {
		if err := s.persister.SaveThreadMessage(ctx, boardID, threadID, msg); err != nil {
			return Message{}, fmt.Errorf("persisting thread message: %w", err)
		}
	}
	thread.Messages = append(thread.Messages, msg)

	s.broadcaster.Publish(BoardResource(boardID), Event{
		Type:     EventThreadUpdate,
		Resource: BoardResource(boardID),
		Data:     ThreadUpdate{Thread: thread.Summary(), Message: &msg},
	})
	metrics.MessagesAppended.WithLabelValues("thread").Inc()
	return msg, nil
}

// SetThreadPinned pins or unpins a thread.
func (s *Store) SetThreadPinned(ctx context.Context, boardID, threadID string, pinned bool) (Thread, error) {
	return s.updateThread(ctx, boardID, threadID, func(t *Thread) {
		t.Pinned = pinned
	})
}

// AddThreadTags adds tags to a thread's tag set.
func (s *Store) AddThreadTags(ctx context.Context, boardID, threadID string, tags []string) (Thread, error) {
	return s.updateThread(ctx, boardID, threadID, func(t *Thread) {
		t.Tags = normalizeTags(append(slices.Clone(t.Tags), tags...))
	})
}

func (s *Store) updateThread(ctx context.Context, boardID, threadID string, mutate func(*Thread)) (Thread, error) {
	bs := s.board(boardID)
	if bs == nil {
		return Thread{}, fmt.Errorf("board %q: %w", boardID, ErrNotFound)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	current, ok := bs.threads[threadID]
	if !ok {
		return Thread{}, fmt.Errorf("thread %q on board %q: %w", threadID, boardID, ErrNotFound)
	}

	next := current.clone()
	mutate(&next)
	if s.persister != nil {
		if err := s.persister.SaveThread(ctx, next); err != nil {
			return Thread{}, fmt.Errorf("persisting thread: %w", err)
		}
	}
	*current = next

	s.broadcaster.Publish(BoardResource(boardID), Event{
		Type:     EventThreadUpdate,
		Resource: BoardResource(boardID),
		Data:     ThreadUpdate{Thread: current.Summary()},
	})
	return current.clone(), nil
}

// sortedThreadsLocked returns copies of the board's threads, pinned first
// then newest first. Caller holds bs.mu.
func (bs *boardState) sortedThreadsLocked() []Thread {
	threads := make([]Thread, 0, len(bs.threads))
	for _, t := range bs.threads {
		threads = append(threads, t.clone())
	}
	sortThreads(threads)
	return threads
}

// GetBoardThreads returns the board's thread summaries, pinned first then
// newest first. Unknown boards come back empty.
func (s *Store) GetBoardThreads(boardID string) []ThreadSummary {
	bs := s.board(boardID)
	if bs == nil {
		return []ThreadSummary{}
	}
	bs.mu.RLock()
	threads := bs.sortedThreadsLocked()
	bs.mu.RUnlock()

	out := make([]ThreadSummary, len(threads))
	for i, t := range threads {
		out[i] = t.Summary()
	}
	return out
}

// GetThread returns a copy of a thread with its messages.
func (s *Store) GetThread(boardID, threadID string) (Thread, error) {
	bs := s.board(boardID)
	if bs == nil {
		return Thread{}, fmt.Errorf("board %q: %w", boardID, ErrNotFound)
	}
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	t, ok := bs.threads[threadID]
	if !ok {
		return Thread{}, fmt.Errorf("thread %q on board %q: %w", threadID, boardID, ErrNotFound)
	}
	return t.clone(), nil
}

// RecentThreadMessages returns at most n of a thread's newest messages,
// oldest first.
func (s *Store) RecentThreadMessages(boardID, threadID string, n int) ([]Message, error) {
	bs := s.board(boardID)
	if bs == nil {
		return nil, fmt.Errorf("board %q: %w", boardID, ErrNotFound)
	}
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	t, ok := bs.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %q on board %q: %w", threadID, boardID, ErrNotFound)
	}
	return tail(t.Messages, n), nil
}

// ThreadAt returns the thread at a 1-based position in GetBoardThreads order.
func (s *Store) ThreadAt(boardID string, index int) (Thread, error) {
	if index < 1 {
		return Thread{}, fmt.Errorf("%w: thread index must be >= 1", ErrInvalidArgument)
	}
	bs := s.board(boardID)
	if bs == nil {
		return Thread{}, fmt.Errorf("board %q: %w", boardID, ErrNotFound)
	}
	bs.mu.RLock()
	threads := bs.sortedThreadsLocked()
	bs.mu.RUnlock()
	if index > len(threads) {
		return Thread{}, fmt.Errorf("thread %d on board %q: %w", index, boardID, ErrNotFound)
	}
	return threads[index-1], nil
}

// SubscribeChannel opens a stream on channel. The first event is a history
// snapshot; every later message appended to the channel follows it, with no
// duplicates of snapshot entries.
func (s *Store) SubscribeChannel(ctx context.Context, name, clientID string) (*Subscription, error) {
	if err := validateName("channel", name); err != nil {
		return nil, err
	}
	resource := ChannelResource(name)

	// Holding the map lock while the channel is absent keeps a concurrent
	// first write from slipping between the snapshot and the registration.
	s.mu.RLock()
	st, ok := s.channels[name]
	if !ok {
		sub := s.broadcaster.Subscribe(ctx, resource, clientID, Event{
			Type:     EventHistory,
			Resource: resource,
			Data:     ChannelHistory{Channel: name, Messages: []Message{}},
		})
		s.mu.RUnlock()
		return sub, nil
	}
	st.mu.RLock()
	s.mu.RUnlock()
	defer st.mu.RUnlock()

	history := ChannelHistory{Channel: name, Messages: slices.Clone(st.messages)}
	if s.historyLimit > 0 && len(st.messages) > s.historyLimit {
		history.Messages = tail(st.messages, s.historyLimit)
		history.Truncated = true
	}
	return s.broadcaster.Subscribe(ctx, resource, clientID, Event{
		Type:     EventHistory,
		Resource: resource,
		Data:     history,
	}), nil
}

// SubscribeBoard opens a stream on a board. The first event carries every
// thread with its messages; thread_update and board_update events follow.
func (s *Store) SubscribeBoard(ctx context.Context, boardID, clientID string) (*Subscription, error) {
	if err := validateName("board id", boardID); err != nil {
		return nil, err
	}
	resource := BoardResource(boardID)

	s.mu.RLock()
	bs, ok := s.boards[boardID]
	if !ok {
		sub := s.broadcaster.Subscribe(ctx, resource, clientID, Event{
			Type:     EventHistory,
			Resource: resource,
			Data:     BoardHistory{Board: Board{ID: boardID}, Threads: []Thread{}},
		})
		s.mu.RUnlock()
		return sub, nil
	}
	bs.mu.RLock()
	s.mu.RUnlock()
	defer bs.mu.RUnlock()

	return s.broadcaster.Subscribe(ctx, resource, clientID, Event{
		Type:     EventHistory,
		Resource: resource,
		Data:     BoardHistory{Board: bs.board, Threads: bs.sortedThreadsLocked()},
	}), nil
}

// Restore replaces the in-memory state with snap without publishing.
func (s *Store) Restore(snap Snapshot) {
	channels := make(map[string]*channelState, len(snap.Channels))
	for _, ch := range snap.Channels {
		st := &channelState{
			messages: slices.Clone(ch.Messages),
			bots:     make(map[string]struct{}, len(ch.Bots)),
		}
		for _, b := range ch.Bots {
			st.bots[b] = struct{}{}
		}
		channels[ch.Name] = st
	}

	boards := make(map[string]*boardState, len(snap.Boards))
	for _, b := range snap.Boards {
		bs := &boardState{board: b.Board, threads: make(map[string]*Thread, len(b.Threads))}
		for _, t := range b.Threads {
			t := t.clone()
			t.BoardID = b.Board.ID
			bs.threads[t.ID] = &t
		}
		boards[b.Board.ID] = bs
	}

	s.mu.Lock()
	s.channels = channels
	s.boards = boards
	s.mu.Unlock()

	s.logger.Info("conversation state restored", "channels", len(channels), "boards", len(boards))
}
