package ts3

// EventKind tags the closed set of notification event variants. Dispatch
// and filtering match on the tag, never on runtime type identity.
type EventKind int

const (
	KindClientEntered EventKind = iota
	KindClientLeft
	KindClientKicked
	KindClientBanned
	KindClientMoved
	KindTextMessage
	KindServerEdited
	KindChannelEdited
	KindChannelDescriptionChanged
)

// ReasonID explains why a view or move notification happened.
type ReasonID int

const (
	ReasonNone        ReasonID = -1
	ReasonSwitched    ReasonID = 0
	ReasonMoved       ReasonID = 1
	ReasonTimeout     ReasonID = 3
	ReasonChannelKick ReasonID = 4
	ReasonServerKick  ReasonID = 5
	ReasonBan         ReasonID = 6
	ReasonLeft        ReasonID = 8
)

// TextMessageTargetMode selects the addressing of a text message.
type TextMessageTargetMode int

const (
	TextMessagePrivate TextMessageTargetMode = 1
	TextMessageChannel TextMessageTargetMode = 2
	TextMessageServer  TextMessageTargetMode = 3
)

// Event is one asynchronous server notification, constructed fresh per
// notification line and never mutated after dispatch. The set of variants
// is closed within this package.
type Event interface {
	Kind() EventKind
}

// ClientEnteredEvent reports a client becoming visible (connect or channel
// switch into view).
type ClientEnteredEvent struct {
	ClientID      int
	FromChannelID int
	ToChannelID   int
	Nickname      string
	UniqueID      string
}

func (ClientEnteredEvent) Kind() EventKind { return KindClientEntered }

// ClientLeftEvent reports a client leaving view for a reason other than a
// kick or ban.
type ClientLeftEvent struct {
	ClientID      int
	FromChannelID int
	ToChannelID   int
	ReasonID      ReasonID
	ReasonMessage string
}

func (ClientLeftEvent) Kind() EventKind { return KindClientLeft }

// ClientKickedEvent reports a client kicked from a channel or the server.
type ClientKickedEvent struct {
	ClientID      int
	FromChannelID int
	ToChannelID   int
	ReasonID      ReasonID
	ReasonMessage string
	InvokerID     int
	InvokerName   string
	InvokerUID    string
}

func (ClientKickedEvent) Kind() EventKind { return KindClientKicked }

// ClientBannedEvent reports a client banned from the server. BanTime is the
// duration in seconds, 0 for a permanent ban.
type ClientBannedEvent struct {
	ClientID      int
	FromChannelID int
	ToChannelID   int
	ReasonMessage string
	BanTime       int
	InvokerID     int
	InvokerName   string
	InvokerUID    string
}

func (ClientBannedEvent) Kind() EventKind { return KindClientBanned }

// ClientMovedEvent reports a client moved between channels, either by
// itself (ReasonSwitched) or by another client (ReasonMoved).
type ClientMovedEvent struct {
	ClientID    int
	ToChannelID int
	ReasonID    ReasonID
	InvokerID   int
	InvokerName string
	InvokerUID  string
}

func (ClientMovedEvent) Kind() EventKind { return KindClientMoved }

// TextMessageEvent reports a private, channel, or server text message.
type TextMessageEvent struct {
	TargetMode  TextMessageTargetMode
	Message     string
	TargetID    int
	InvokerID   int
	InvokerName string
	InvokerUID  string
}

func (TextMessageEvent) Kind() EventKind { return KindTextMessage }

// ServerEditedEvent reports changed virtual server properties. Changed
// holds the property fields of the notification.
type ServerEditedEvent struct {
	ReasonID    ReasonID
	InvokerID   int
	InvokerName string
	InvokerUID  string
	Changed     *Record
}

func (ServerEditedEvent) Kind() EventKind { return KindServerEdited }

// ChannelEditedEvent reports changed channel properties.
type ChannelEditedEvent struct {
	ChannelID   int
	ReasonID    ReasonID
	InvokerID   int
	InvokerName string
	InvokerUID  string
	Changed     *Record
}

func (ChannelEditedEvent) Kind() EventKind { return KindChannelEdited }

// ChannelDescriptionChangedEvent reports an edited channel description.
type ChannelDescriptionChangedEvent struct {
	ChannelID int
}

func (ChannelDescriptionChangedEvent) Kind() EventKind { return KindChannelDescriptionChanged }

// parseEvent builds the event variant for a notification verb. Unknown
// verbs yield nil: the dispatcher ignores them without error. Missing
// numeric fields default to -1 so absence is distinguishable from id 0.
func parseEvent(verb string, record *Record) Event {
	switch verb {
	case "notifycliententerview":
		return ClientEnteredEvent{
			ClientID:      record.getIntDefault("clid", -1),
			FromChannelID: record.getIntDefault("cfid", -1),
			ToChannelID:   record.getIntDefault("ctid", -1),
			Nickname:      record.getString("client_nickname"),
			UniqueID:      record.getString("client_unique_identifier"),
		}

	case "notifyclientleftview":
		reason := ReasonID(record.getIntDefault("reasonid", int(ReasonNone)))
		switch reason {
		case ReasonChannelKick, ReasonServerKick:
			return ClientKickedEvent{
				ClientID:      record.getIntDefault("clid", -1),
				FromChannelID: record.getIntDefault("cfid", -1),
				ToChannelID:   record.getIntDefault("ctid", -1),
				ReasonID:      reason,
				ReasonMessage: record.getString("reasonmsg"),
				InvokerID:     record.getIntDefault("invokerid", -1),
				InvokerName:   record.getString("invokername"),
				InvokerUID:    record.getString("invokeruid"),
			}
		case ReasonBan:
			return ClientBannedEvent{
				ClientID:      record.getIntDefault("clid", -1),
				FromChannelID: record.getIntDefault("cfid", -1),
				ToChannelID:   record.getIntDefault("ctid", -1),
				ReasonMessage: record.getString("reasonmsg"),
				BanTime:       record.getIntDefault("bantime", 0),
				InvokerID:     record.getIntDefault("invokerid", -1),
				InvokerName:   record.getString("invokername"),
				InvokerUID:    record.getString("invokeruid"),
			}
		default:
			return ClientLeftEvent{
				ClientID:      record.getIntDefault("clid", -1),
				FromChannelID: record.getIntDefault("cfid", -1),
				ToChannelID:   record.getIntDefault("ctid", -1),
				ReasonID:      reason,
				ReasonMessage: record.getString("reasonmsg"),
			}
		}

	case "notifyclientmoved":
		return ClientMovedEvent{
			ClientID:    record.getIntDefault("clid", -1),
			ToChannelID: record.getIntDefault("ctid", -1),
			ReasonID:    ReasonID(record.getIntDefault("reasonid", int(ReasonNone))),
			InvokerID:   record.getIntDefault("invokerid", -1),
			InvokerName: record.getString("invokername"),
			InvokerUID:  record.getString("invokeruid"),
		}

	case "notifytextmessage":
		return TextMessageEvent{
			TargetMode:  TextMessageTargetMode(record.getIntDefault("targetmode", -1)),
			Message:     record.getString("msg"),
			TargetID:    record.getIntDefault("target", -1),
			InvokerID:   record.getIntDefault("invokerid", -1),
			InvokerName: record.getString("invokername"),
			InvokerUID:  record.getString("invokeruid"),
		}

	case "notifyserveredited":
		return ServerEditedEvent{
			ReasonID:    ReasonID(record.getIntDefault("reasonid", int(ReasonNone))),
			InvokerID:   record.getIntDefault("invokerid", -1),
			InvokerName: record.getString("invokername"),
			InvokerUID:  record.getString("invokeruid"),
			Changed:     record,
		}

	case "notifychanneledited":
		return ChannelEditedEvent{
			ChannelID:   record.getIntDefault("cid", -1),
			ReasonID:    ReasonID(record.getIntDefault("reasonid", int(ReasonNone))),
			InvokerID:   record.getIntDefault("invokerid", -1),
			InvokerName: record.getString("invokername"),
			InvokerUID:  record.getString("invokeruid"),
			Changed:     record,
		}

	case "notifychanneldescriptionchanged":
		return ChannelDescriptionChangedEvent{
			ChannelID: record.getIntDefault("cid", -1),
		}
	}

	return nil
}
