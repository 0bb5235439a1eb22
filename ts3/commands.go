package ts3

// Convenience wrappers around Execute. Each builds the command line for one
// server operation and translates a non-zero status into a *QueryError.

// Exec runs a command and fails on a non-zero status.
func (conn *Connection) Exec(command *Command) ([]*Record, error) {
	records, status, err := conn.Execute(command)
	if err != nil {
		return nil, err
	}
	if statusErr := status.Err(); statusErr != nil {
		return nil, statusErr
	}
	return records, nil
}

// execSingle runs a command whose reply carries at most one record.
func (conn *Connection) execSingle(command *Command) (*Record, error) {
	records, err := conn.Exec(command)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return NewRecord(), nil
	}
	return records[0], nil
}

// Login authenticates the session with query credentials. On an SSH
// transport the command is skipped: the SSH handshake already
// authenticated the session.
func (conn *Connection) Login(username, password string) error {
	conn.stateLock.Lock()
	isSSH := conn.isSSH
	conn.stateLock.Unlock()
	if isSSH {
		conn.logger.Warn("ignoring login command on ssh connection")
		return nil
	}

	_, err := conn.Exec(NewCommand("login").
		Set("client_login_name", username).
		Set("client_login_password", password))
	if err != nil {
		if _, isQueryErr := err.(*QueryError); isQueryErr {
			return NewError(AuthenticationError, err)
		}
		return err
	}
	return nil
}

// Logout invalidates the current login.
func (conn *Connection) Logout() error {
	_, err := conn.Exec(NewCommand("logout"))
	return err
}

// Use selects the virtual server for all subsequent commands.
func (conn *Connection) Use(serverID int) error {
	_, err := conn.Exec(NewCommand("use").SetInt("sid", serverID))
	return err
}

// Whoami returns information about the query client itself.
func (conn *Connection) Whoami() (*Record, error) {
	return conn.execSingle(NewCommand("whoami"))
}

// Version returns the server version record.
func (conn *Connection) Version() (*Record, error) {
	return conn.execSingle(NewCommand("version"))
}

// ClientList returns the clients on the selected virtual server. Options
// such as "uid" or "away" request additional fields.
func (conn *Connection) ClientList(options ...string) ([]*Record, error) {
	command := NewCommand("clientlist")
	for _, option := range options {
		command.SetFlag(option)
	}
	records, err := conn.Exec(command)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		conn.logger.Warn("clientlist returned no clients")
	}
	return records, nil
}

// ClientInfo returns the properties of one client.
func (conn *Connection) ClientInfo(clientID int) (*Record, error) {
	return conn.execSingle(NewCommand("clientinfo").SetInt("clid", clientID))
}

// ClientFind returns the clients whose nickname matches pattern.
func (conn *Connection) ClientFind(pattern string) ([]*Record, error) {
	return conn.Exec(NewCommand("clientfind").Set("pattern", pattern))
}

// ClientMove moves a client into another channel.
func (conn *Connection) ClientMove(channelID, clientID int) error {
	_, err := conn.Exec(NewCommand("clientmove").SetInt("cid", channelID).SetInt("clid", clientID))
	return err
}

// ClientKick kicks a client. reasonID 4 kicks from the channel, 5 from the
// server; the reason message is limited to 40 characters by the server.
func (conn *Connection) ClientKick(clientID int, reasonID ReasonID, reasonMessage string) error {
	_, err := conn.Exec(NewCommand("clientkick").
		SetInt("clid", clientID).
		SetInt("reasonid", int(reasonID)).
		Set("reasonmsg", reasonMessage))
	return err
}

// ClientUpdate changes properties of the query client itself.
func (conn *Connection) ClientUpdate(properties *Record) error {
	command := NewCommand("clientupdate")
	for _, key := range properties.Keys() {
		command.Set(key, properties.getString(key))
	}
	_, err := conn.Exec(command)
	return err
}

// ChannelList returns the channels of the selected virtual server.
func (conn *Connection) ChannelList(options ...string) ([]*Record, error) {
	command := NewCommand("channellist")
	for _, option := range options {
		command.SetFlag(option)
	}
	records, err := conn.Exec(command)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		conn.logger.Warn("channellist returned no channels")
	}
	return records, nil
}

// ChannelNameList returns just the channel names.
func (conn *Connection) ChannelNameList() ([]string, error) {
	channels, err := conn.ChannelList()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(channels))
	for _, channel := range channels {
		names = append(names, channel.getString("channel_name"))
	}
	return names, nil
}

// ChannelFind returns the channels whose name starts with pattern.
func (conn *Connection) ChannelFind(pattern string) ([]*Record, error) {
	return conn.Exec(NewCommand("channelfind").Set("pattern", pattern))
}

// ChannelFindByName returns the channels whose name equals name exactly.
func (conn *Connection) ChannelFindByName(name string) ([]*Record, error) {
	candidates, err := conn.ChannelFind(name)
	if err != nil {
		return nil, err
	}
	var channels []*Record
	for _, candidate := range candidates {
		if candidate.getString("channel_name") == name {
			channels = append(channels, candidate)
		}
	}
	return channels, nil
}

// SendTextMessage sends a text message to a client, channel, or the
// server, depending on the target mode.
func (conn *Connection) SendTextMessage(targetMode TextMessageTargetMode, targetID int, message string) error {
	_, err := conn.Exec(NewCommand("sendtextmessage").
		SetInt("targetmode", int(targetMode)).
		SetInt("target", targetID).
		Set("msg", message))
	return err
}

// ServerGroupList returns all server groups of the selected server.
func (conn *Connection) ServerGroupList() ([]*Record, error) {
	return conn.Exec(NewCommand("servergrouplist"))
}

// Quit announces the shutdown to the server and closes the session. A
// disconnect racing with the reply is not an error.
func (conn *Connection) Quit() error {
	_, status, err := conn.Execute(NewCommand("quit"))
	closeErr := conn.Close()
	if err != nil {
		if IsDisconnected(err) {
			return closeErr
		}
		return err
	}
	if statusErr := status.Err(); statusErr != nil {
		return statusErr
	}
	return closeErr
}

func (conn *Connection) registerNotify(eventName string, channelID int, selector Selector, handler EventHandler) (SubscriptionID, error) {
	command := NewCommand("servernotifyregister").Set("event", eventName)
	if channelID > 0 {
		command.SetInt("id", channelID)
	}
	if _, err := conn.Exec(command); err != nil {
		return 0, err
	}
	if handler == nil {
		return 0, nil
	}
	return conn.Subscribe(selector, handler), nil
}

// RegisterForServerEvents asks the server to push server-wide events and,
// when handler is non-nil, subscribes it for them. Remember to ignore
// notifications invoked by the query client itself.
func (conn *Connection) RegisterForServerEvents(handler EventHandler) (SubscriptionID, error) {
	return conn.registerNotify("server", 0, ServerEvents(), handler)
}

// RegisterForChannelEvents asks the server to push events of one channel.
func (conn *Connection) RegisterForChannelEvents(channelID int, handler EventHandler) (SubscriptionID, error) {
	return conn.registerNotify("channel", channelID, ChannelEvents(channelID), handler)
}

// RegisterForServerMessages asks the server to push server text messages.
func (conn *Connection) RegisterForServerMessages(handler EventHandler) (SubscriptionID, error) {
	return conn.registerNotify("textserver", 0, ServerMessages(), handler)
}

// RegisterForChannelMessages asks the server to push channel text messages.
func (conn *Connection) RegisterForChannelMessages(handler EventHandler) (SubscriptionID, error) {
	return conn.registerNotify("textchannel", 0, ChannelMessages(), handler)
}

// RegisterForPrivateMessages asks the server to push private text messages.
func (conn *Connection) RegisterForPrivateMessages(handler EventHandler) (SubscriptionID, error) {
	return conn.registerNotify("textprivate", 0, PrivateMessages(), handler)
}
