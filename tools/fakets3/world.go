package main

import (
	"sort"
	"sync"

	"github.com/Murgeye/ts3query-client-go/ts3"
)

// world holds the mutable server-side state shared by all sessions.
// Every exported operation takes the lock; notifications produced by a
// mutation are returned to the caller for fan-out outside the lock.
type world struct {
	lock        sync.Mutex
	credentials map[string]string
	servers     map[int]*virtualServer
	nextClient  int
}

type virtualServer struct {
	id       int
	name     string
	channels map[int]*channel
	clients  map[int]*client
	groups   []groupConfig
}

type channel struct {
	id          int
	name        string
	description string
}

type client struct {
	id        int
	nickname  string
	channelID int
	uid       string
	query     bool
}

func newWorld(config *worldConfig) *world {
	w := &world{
		credentials: config.Credentials,
		servers:     make(map[int]*virtualServer),
		nextClient:  100,
	}
	for _, serverCfg := range config.Servers {
		server := &virtualServer{
			id:       serverCfg.ID,
			name:     serverCfg.Name,
			channels: make(map[int]*channel),
			clients:  make(map[int]*client),
			groups:   serverCfg.Groups,
		}
		for _, channelCfg := range serverCfg.Channels {
			server.channels[channelCfg.ID] = &channel{
				id:          channelCfg.ID,
				name:        channelCfg.Name,
				description: channelCfg.Description,
			}
		}
		for _, clientCfg := range serverCfg.Clients {
			server.clients[clientCfg.ID] = &client{
				id:        clientCfg.ID,
				nickname:  clientCfg.Nickname,
				channelID: clientCfg.ChannelID,
				uid:       clientCfg.UID,
			}
		}
		w.servers[server.id] = server
	}
	return w
}

// checkLogin validates query credentials. An empty credential table
// accepts everything.
func (w *world) checkLogin(username, password string) bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	if len(w.credentials) == 0 {
		return true
	}
	expected, known := w.credentials[username]
	return known && expected == password
}

func (w *world) server(serverID int) *virtualServer {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.servers[serverID]
}

// joinQueryClient adds the session's own client entry to the selected
// server and returns its id.
func (w *world) joinQueryClient(serverID int, nickname string) int {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return 0
	}
	w.nextClient++
	id := w.nextClient
	server.clients[id] = &client{id: id, nickname: nickname, query: true}
	return id
}

func (w *world) leaveQueryClient(serverID, clientID int) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if server := w.servers[serverID]; server != nil {
		delete(server.clients, clientID)
	}
}

func (w *world) renameClient(serverID, clientID int, nickname string) {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return
	}
	if entry := server.clients[clientID]; entry != nil {
		entry.nickname = nickname
	}
}

func (w *world) clientList(serverID int) []*ts3.Record {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return nil
	}
	ids := make([]int, 0, len(server.clients))
	for id := range server.clients {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	records := make([]*ts3.Record, 0, len(ids))
	for _, id := range ids {
		entry := server.clients[id]
		clientType := 0
		if entry.query {
			clientType = 1
		}
		records = append(records, ts3.NewRecord().
			SetInt("clid", entry.id).
			SetInt("cid", entry.channelID).
			Set("client_nickname", entry.nickname).
			SetInt("client_type", clientType))
	}
	return records
}

func (w *world) clientInfo(serverID, clientID int) *ts3.Record {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return nil
	}
	entry := server.clients[clientID]
	if entry == nil {
		return nil
	}
	return ts3.NewRecord().
		SetInt("cid", entry.channelID).
		Set("client_nickname", entry.nickname).
		Set("client_unique_identifier", entry.uid)
}

func (w *world) channelList(serverID int) []*ts3.Record {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return nil
	}
	ids := make([]int, 0, len(server.channels))
	for id := range server.channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	records := make([]*ts3.Record, 0, len(ids))
	for _, id := range ids {
		entry := server.channels[id]
		records = append(records, ts3.NewRecord().
			SetInt("cid", entry.id).
			Set("channel_name", entry.name).
			SetInt("total_clients", w.clientsInChannelLocked(server, entry.id)))
	}
	return records
}

func (w *world) clientsInChannelLocked(server *virtualServer, channelID int) int {
	count := 0
	for _, entry := range server.clients {
		if entry.channelID == channelID {
			count++
		}
	}
	return count
}

func (w *world) channelInfo(serverID, channelID int) *ts3.Record {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return nil
	}
	entry := server.channels[channelID]
	if entry == nil {
		return nil
	}
	return ts3.NewRecord().
		Set("channel_name", entry.name).
		Set("channel_description", entry.description).
		SetInt("total_clients", w.clientsInChannelLocked(server, channelID))
}

func (w *world) channelFind(serverID int, pattern string) []*ts3.Record {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return nil
	}
	ids := make([]int, 0, len(server.channels))
	for id := range server.channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var records []*ts3.Record
	for _, id := range ids {
		entry := server.channels[id]
		if len(entry.name) >= len(pattern) && entry.name[:len(pattern)] == pattern {
			records = append(records, ts3.NewRecord().
				SetInt("cid", entry.id).
				Set("channel_name", entry.name))
		}
	}
	return records
}

// moveClient relocates a client and reports the notification to push to
// registered sessions. A zero invoker id means the move was self-initiated.
func (w *world) moveClient(serverID, channelID, clientID, invokerID int, invokerName string) (*ts3.Record, bool) {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return nil, false
	}
	entry := server.clients[clientID]
	if entry == nil {
		return nil, false
	}
	if server.channels[channelID] == nil {
		return nil, false
	}
	entry.channelID = channelID

	notification := ts3.NewRecord().
		SetInt("ctid", channelID).
		SetInt("reasonid", 1).
		SetInt("clid", clientID)
	if invokerID > 0 {
		notification.SetInt("invokerid", invokerID).Set("invokername", invokerName)
	}
	return notification, true
}

// kickClient removes a client and reports the leftview notification.
func (w *world) kickClient(serverID, clientID, reasonID int, reasonMessage string, invokerID int, invokerName string) (*ts3.Record, bool) {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return nil, false
	}
	entry := server.clients[clientID]
	if entry == nil {
		return nil, false
	}
	delete(server.clients, clientID)

	notification := ts3.NewRecord().
		SetInt("cfid", entry.channelID).
		SetInt("ctid", 0).
		SetInt("reasonid", reasonID).
		Set("reasonmsg", reasonMessage).
		SetInt("clid", clientID).
		SetInt("invokerid", invokerID).
		Set("invokername", invokerName)
	return notification, true
}

func (w *world) serverGroupList(serverID int) []*ts3.Record {
	w.lock.Lock()
	defer w.lock.Unlock()
	server := w.servers[serverID]
	if server == nil {
		return nil
	}
	records := make([]*ts3.Record, 0, len(server.groups))
	for _, group := range server.groups {
		records = append(records, ts3.NewRecord().
			SetInt("sgid", group.ID).
			Set("name", group.Name).
			SetInt("type", group.Type))
	}
	return records
}
