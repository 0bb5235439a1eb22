package ts3

import (
	"fmt"
	"log/slog"
	"sync"
)

type selectorKind int

const (
	selectAll selectorKind = iota
	selectEventKind
	selectServerEvents
	selectChannelEvents
	selectServerMessages
	selectChannelMessages
	selectPrivateMessages
)

// Selector names the notifications an observer wants: either one specific
// event kind or a broader scope (server-wide events, messages of one
// addressing mode, events of one channel).
type Selector struct {
	kind      selectorKind
	eventKind EventKind
	channelID int
}

// AllEvents selects every dispatched event.
func AllEvents() Selector { return Selector{kind: selectAll} }

// OnEvent selects a single event kind.
func OnEvent(kind EventKind) Selector {
	return Selector{kind: selectEventKind, eventKind: kind}
}

// ServerEvents selects server-wide events: clients entering and leaving
// view (including kicks and bans) and server property edits.
func ServerEvents() Selector { return Selector{kind: selectServerEvents} }

// ChannelEvents selects events scoped to one channel: moves into the
// channel, channel edits, and description changes. channelID 0 selects
// events for every channel.
func ChannelEvents(channelID int) Selector {
	return Selector{kind: selectChannelEvents, channelID: channelID}
}

// ServerMessages selects server-wide text messages.
func ServerMessages() Selector { return Selector{kind: selectServerMessages} }

// ChannelMessages selects channel text messages.
func ChannelMessages() Selector { return Selector{kind: selectChannelMessages} }

// PrivateMessages selects private text messages.
func PrivateMessages() Selector { return Selector{kind: selectPrivateMessages} }

func (selector Selector) matches(event Event) bool {
	switch selector.kind {
	case selectAll:
		return true

	case selectEventKind:
		return event.Kind() == selector.eventKind

	case selectServerEvents:
		switch event.Kind() {
		case KindClientEntered, KindClientLeft, KindClientKicked, KindClientBanned, KindServerEdited:
			return true
		}
		return false

	case selectChannelEvents:
		var channelID int
		switch ev := event.(type) {
		case ClientMovedEvent:
			channelID = ev.ToChannelID
		case ChannelEditedEvent:
			channelID = ev.ChannelID
		case ChannelDescriptionChangedEvent:
			channelID = ev.ChannelID
		default:
			return false
		}
		return selector.channelID == 0 || selector.channelID == channelID

	case selectServerMessages:
		message, isMessage := event.(TextMessageEvent)
		return isMessage && message.TargetMode == TextMessageServer

	case selectChannelMessages:
		message, isMessage := event.(TextMessageEvent)
		return isMessage && message.TargetMode == TextMessageChannel

	case selectPrivateMessages:
		message, isMessage := event.(TextMessageEvent)
		return isMessage && message.TargetMode == TextMessagePrivate
	}

	return false
}

// SubscriptionID identifies one observer registration for removal.
type SubscriptionID uint64

// EventHandler receives dispatched events. Handlers run on the receive
// goroutine; returned errors are reported and do not stop dispatch.
type EventHandler func(Event) error

type subscription struct {
	id       SubscriptionID
	selector Selector
	handler  EventHandler
}

// eventDispatcher fans classified notifications out to registered
// observers in registration order. Registrations may be added or removed
// from within a handler: dispatch iterates a snapshot of the set.
type eventDispatcher struct {
	lock         sync.Mutex
	nextID       SubscriptionID
	subs         []subscription
	logger       *slog.Logger
	errorHandler func(error)
}

func newEventDispatcher(logger *slog.Logger) *eventDispatcher {
	return &eventDispatcher{nextID: 1, logger: logger}
}

func (dispatcher *eventDispatcher) subscribe(selector Selector, handler EventHandler) SubscriptionID {
	dispatcher.lock.Lock()
	defer dispatcher.lock.Unlock()

	id := dispatcher.nextID
	dispatcher.nextID++
	dispatcher.subs = append(dispatcher.subs, subscription{id: id, selector: selector, handler: handler})
	return id
}

func (dispatcher *eventDispatcher) unsubscribe(id SubscriptionID) {
	dispatcher.lock.Lock()
	defer dispatcher.lock.Unlock()

	for index, sub := range dispatcher.subs {
		if sub.id == id {
			dispatcher.subs = append(dispatcher.subs[:index], dispatcher.subs[index+1:]...)
			return
		}
	}
}

func (dispatcher *eventDispatcher) clear() {
	dispatcher.lock.Lock()
	dispatcher.subs = nil
	dispatcher.lock.Unlock()
}

// dispatch builds the event for a notification line and delivers it to
// every matching observer. Unknown verbs are ignored. Handler errors and
// panics are contained at this boundary so the receive loop survives them.
func (dispatcher *eventDispatcher) dispatch(verb string, record *Record) {
	event := parseEvent(verb, record)
	if event == nil {
		dispatcher.logger.Debug("ignoring unknown notification verb", "verb", verb)
		return
	}

	dispatcher.lock.Lock()
	snapshot := make([]subscription, len(dispatcher.subs))
	copy(snapshot, dispatcher.subs)
	dispatcher.lock.Unlock()

	for _, sub := range snapshot {
		if !sub.selector.matches(event) {
			continue
		}
		dispatcher.deliver(sub, event)
	}
}

func (dispatcher *eventDispatcher) deliver(sub subscription, event Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			dispatcher.reportHandlerFailure(fmt.Errorf("event handler panic: %v", recovered))
		}
	}()

	if err := sub.handler(event); err != nil {
		dispatcher.reportHandlerFailure(err)
	}
}

func (dispatcher *eventDispatcher) reportHandlerFailure(err error) {
	dispatcher.logger.Warn("event handler failed", "error", err)
	if dispatcher.errorHandler != nil {
		dispatcher.errorHandler(err)
	}
}
