package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventBoardChanged = "board-changed"
	RealtimeEventNotification = "notification"
	realtimeEventReady        = "ready"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "taskboard-backend"
)

// RealtimeMessage is one event addressed to a single user. BoardID is empty for user-scoped events.
type RealtimeMessage struct {
	UserID    string
	EventType string
	Action    string
	BoardID   string
	EntityIDs []string
	Timestamp time.Time
}

// SubscriberObserver is told when streams open and close.
type SubscriberObserver interface {
	SubscriberOpened()
	SubscriberClosed()
}

// RealtimeDispatcher fans messages out to every open stream of the addressed user. Slow
// streams drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	observer    SubscriberObserver
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
	once   sync.Once
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// SetObserver attaches a subscriber gauge; call before serving traffic.
func (d *RealtimeDispatcher) SetObserver(observer SubscriberObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = observer
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	cleanup := func() {
		subscriber.once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// PublishAll sends a copy of message to each user.
func (d *RealtimeDispatcher) PublishAll(userIDs []string, message RealtimeMessage) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		copyMessage := message
		copyMessage.UserID = userID
		d.Publish(copyMessage)
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
	observer := d.observer
	d.mu.Unlock()
	if observer != nil {
		observer.SubscriberOpened()
	}
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	removed := false
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		if _, ok := subscribers[subscriberID]; ok {
			delete(subscribers, subscriberID)
			removed = true
		}
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	observer := d.observer
	d.mu.Unlock()
	if removed && observer != nil {
		observer.SubscriberClosed()
	}
}
