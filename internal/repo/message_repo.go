package repo

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrMessageNotFound is returned for operations on an unknown messageId.
var ErrMessageNotFound = errors.New("message not found")

// ErrNotRecipient is returned when a non-receiver attempts MARK_AS_READ
// (spec section 6.2 ownership rules).
var ErrNotRecipient = errors.New("only the receiver may mark this message read")

// ErrAlreadyRead is returned by the second MARK_AS_READ call; the message
// itself remains read with its original readAt (spec section 8).
var ErrAlreadyRead = errors.New("message already marked read")

// MessageRepo stores direct messages keyed by UUID messageId.
type MessageRepo struct {
	mu   sync.RWMutex
	data map[string]Message
	w    *wal[Message]
	snap *snapshotManager[Message]
}

// NewMessageRepo opens or creates a message store under dataDir.
func NewMessageRepo(dataDir string) (*MessageRepo, error) {
	r := &MessageRepo{data: make(map[string]Message)}
	r.snap = newSnapshotManager[Message](dataDir, "messages")

	loaded, err := r.snap.load()
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		r.data = loaded
	}

	w, err := newWAL[Message](filepath.Join(dataDir, "messages.wal.log"))
	if err != nil {
		return nil, err
	}
	r.w = w

	entries, err := w.readAll()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		r.data[e.Key] = e.Value
	}
	return r, nil
}

// Add creates a new message and returns it with a freshly generated
// messageId.
func (r *MessageRepo) Add(sender, receiver, content string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Message{
		MessageID:        uuid.NewString(),
		SenderUsername:   sender,
		ReceiverUsername: receiver,
		Content:           content,
		SentAt:           time.Now().UTC(),
	}
	if err := r.w.append(walEntry[Message]{Op: opPut, Key: m.MessageID, Value: m}); err != nil {
		return Message{}, err
	}
	r.data[m.MessageID] = m
	return m, nil
}

// CreateWithID is used by the replication applier for MESSAGE_SENT: a
// no-op if a message by that id already exists locally (idempotent), and
// respects the incoming read flag (spec section 4.6).
func (r *MessageRepo) CreateWithID(m Message) (applied bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[m.MessageID]; exists {
		return false, nil
	}
	if err := r.w.append(walEntry[Message]{Op: opPut, Key: m.MessageID, Value: m}); err != nil {
		return false, err
	}
	r.data[m.MessageID] = m
	return true, nil
}

// MarkRead marks a message read; only the receiver may do this. A second
// call returns ErrAlreadyRead, but the message is unaffected (idempotent
// in effect, per spec section 8).
func (r *MessageRepo) MarkRead(messageID, requester string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[messageID]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	if m.ReceiverUsername != requester {
		return Message{}, ErrNotRecipient
	}
	if m.Read {
		return m, ErrAlreadyRead
	}
	now := time.Now().UTC()
	m.Read = true
	m.ReadAt = &now

	if err := r.w.append(walEntry[Message]{Op: opPut, Key: messageID, Value: m}); err != nil {
		return Message{}, err
	}
	r.data[messageID] = m
	return m, nil
}

// ApplyRead is the idempotent replication-applier counterpart of MarkRead
// (spec section 4.8 supplemental MESSAGE_READ event): marks a message read
// if it exists and isn't already, so a peer's GET_UNREAD_MESSAGES and
// GET_CONVERSATION observe the same read state as the node the client
// actually called MARK_AS_READ on.
func (r *MessageRepo) ApplyRead(messageID string, readAt time.Time) (applied bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[messageID]
	if !ok {
		return false, nil
	}
	if m.Read {
		return false, nil
	}
	m.Read = true
	m.ReadAt = &readAt

	if err := r.w.append(walEntry[Message]{Op: opPut, Key: messageID, Value: m}); err != nil {
		return false, err
	}
	r.data[messageID] = m
	return true, nil
}

// GetByID returns a single message.
func (r *MessageRepo) GetByID(messageID string) (Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.data[messageID]
	return m, ok
}

// GetByReceiver returns every message addressed to username.
func (r *MessageRepo) GetByReceiver(username string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Message, 0)
	for _, m := range r.data {
		if m.ReceiverUsername == username {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

// GetUnreadByReceiver returns every unread message addressed to username.
func (r *MessageRepo) GetUnreadByReceiver(username string) []Message {
	all := r.GetByReceiver(username)
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if !m.Read {
			out = append(out, m)
		}
	}
	return out
}

// GetConversation returns every message exchanged between a and b,
// ascending by sentAt (spec section 6.4).
func (r *MessageRepo) GetConversation(a, b string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Message, 0)
	for _, m := range r.data {
		if (m.SenderUsername == a && m.ReceiverUsername == b) ||
			(m.SenderUsername == b && m.ReceiverUsername == a) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

// Snapshot compacts the WAL into a point-in-time snapshot.
func (r *MessageRepo) Snapshot() error {
	r.mu.RLock()
	cp := make(map[string]Message, len(r.data))
	for k, v := range r.data {
		cp[k] = v
	}
	r.mu.RUnlock()

	if err := r.snap.save(cp); err != nil {
		return err
	}
	return r.w.truncate()
}

// Close releases the underlying WAL file.
func (r *MessageRepo) Close() error {
	return r.w.close()
}
