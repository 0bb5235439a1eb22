package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/Murgeye/ts3query-client-go/ts3"
)

// Status ids mirrored from a real server.
const (
	statusOK                 = 0
	statusCommandNotFound    = 256
	statusInvalidClientID    = 512
	statusInvalidChannelID   = 768
	statusParameterNotFound  = 770
	statusInvalidServerID    = 1024
	statusServerNotSelected  = 1281
	statusPermissions        = 2568
	statusInvalidCredentials = 520
)

var statusMessages = map[int]string{
	statusOK:                 "ok",
	statusCommandNotFound:    "command not found",
	statusInvalidClientID:    "invalid clientID",
	statusInvalidChannelID:   "invalid channelID",
	statusParameterNotFound:  "parameter not found",
	statusInvalidServerID:    "invalid serverID",
	statusServerNotSelected:  "server is not selected",
	statusPermissions:        "insufficient client permissions",
	statusInvalidCredentials: "invalid loginname or password",
}

// notifyScope is one servernotifyregister registration.
type notifyScope struct {
	event     string
	channelID int
}

// session is the per-connection state. Writes go through writeLock so
// that pushed notifications never interleave with a command reply line.
type session struct {
	conn      net.Conn
	reader    *bufio.Reader
	writeLock sync.Mutex

	world    *world
	registry *sessionRegistry

	authenticated bool
	username      string
	serverID      int
	clientID      int
	nickname      string

	// scopes is read during fan-out from other sessions; the registry
	// lock guards it.
	scopes []notifyScope
}

// sessionRegistry tracks live sessions for notification fan-out.
type sessionRegistry struct {
	lock     sync.Mutex
	sessions map[*session]struct{}
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[*session]struct{})}
}

func (registry *sessionRegistry) add(s *session) {
	registry.lock.Lock()
	registry.sessions[s] = struct{}{}
	registry.lock.Unlock()
}

func (registry *sessionRegistry) remove(s *session) {
	registry.lock.Lock()
	delete(registry.sessions, s)
	registry.lock.Unlock()
}

// broadcast pushes a notification line to every session registered for
// the event. The originating session is skipped: a real server does not
// echo notifications to their invoker.
func (registry *sessionRegistry) broadcast(origin *session, serverID int, event string, channelID int, verb string, record *ts3.Record) {
	registry.lock.Lock()
	targets := make([]*session, 0, len(registry.sessions))
	for s := range registry.sessions {
		if s == origin || s.serverID != serverID {
			continue
		}
		if s.wantsNotify(event, channelID) {
			targets = append(targets, s)
		}
	}
	registry.lock.Unlock()

	line := "notify" + verb + " " + ts3.EncodeRecords([]*ts3.Record{record})
	for _, target := range targets {
		target.push(line)
	}
}

func (s *session) wantsNotify(event string, channelID int) bool {
	for _, scope := range s.scopes {
		if scope.event != event {
			continue
		}
		if scope.channelID == 0 || channelID == 0 || scope.channelID == channelID {
			return true
		}
	}
	return false
}

func (s *session) writeLine(line string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	_, err := s.conn.Write([]byte(line + "\n\r"))
	return err
}

func (s *session) push(line string) {
	if err := s.writeLine(line); err != nil {
		log.Printf("fakets3: notify push to %s failed: %v", s.conn.RemoteAddr(), err)
	}
}

func (s *session) writeStatus(id int) error {
	message, known := statusMessages[id]
	if !known {
		message = "unknown error"
	}
	return s.writeLine(fmt.Sprintf("error id=%d msg=%s", id, ts3.Escape(message)))
}

func (s *session) writeRecords(records []*ts3.Record) error {
	if len(records) > 0 {
		if err := s.writeLine(ts3.EncodeRecords(records)); err != nil {
			return err
		}
	}
	return s.writeStatus(statusOK)
}

// parsedCommand is the server-side view of one request line.
type parsedCommand struct {
	verb  string
	args  map[string]string
	flags []string
}

func parseCommandLine(line string) (*parsedCommand, error) {
	tokens := strings.Split(line, " ")
	command := &parsedCommand{verb: tokens[0], args: make(map[string]string)}
	for _, token := range tokens[1:] {
		if token == "" {
			continue
		}
		if strings.HasPrefix(token, "-") {
			command.flags = append(command.flags, token[1:])
			continue
		}
		key, rawValue, hasValue := strings.Cut(token, "=")
		if !hasValue {
			command.args[key] = ""
			continue
		}
		value, err := ts3.Unescape(rawValue)
		if err != nil {
			return nil, err
		}
		command.args[key] = value
	}
	return command, nil
}

func (command *parsedCommand) intArg(key string) (int, bool) {
	raw, present := command.args[key]
	if !present {
		return 0, false
	}
	value := 0
	if _, err := fmt.Sscanf(raw, "%d", &value); err != nil {
		return 0, false
	}
	return value, true
}

func handleConnection(conn net.Conn, w *world, registry *sessionRegistry, banner string, logConn bool) {
	if logConn {
		log.Printf("fakets3: connection from %s", conn.RemoteAddr())
	}

	s := &session{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		world:    w,
		registry: registry,
		nickname: "serveradmin from " + conn.RemoteAddr().String(),
	}
	registry.add(s)
	defer func() {
		registry.remove(s)
		if s.serverID != 0 && s.clientID != 0 {
			w.leaveQueryClient(s.serverID, s.clientID)
		}
		_ = conn.Close()
		if logConn {
			log.Printf("fakets3: connection from %s closed", conn.RemoteAddr())
		}
	}()

	if err := s.writeLine("TS3"); err != nil {
		return
	}
	if err := s.writeLine(banner); err != nil {
		return
	}

	for {
		raw, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.Trim(raw, "\r\n")
		if line == "" {
			continue
		}
		quit, err := s.dispatch(line)
		if err != nil || quit {
			return
		}
	}
}

func (s *session) dispatch(line string) (quit bool, err error) {
	command, parseErr := parseCommandLine(line)
	if parseErr != nil {
		return false, s.writeStatus(statusParameterNotFound)
	}

	switch command.verb {
	case "login":
		return false, s.handleLogin(command)
	case "logout":
		s.authenticated = false
		return false, s.writeStatus(statusOK)
	case "quit":
		return true, s.writeStatus(statusOK)
	case "use":
		return false, s.handleUse(command)
	case "whoami":
		return false, s.handleWhoami()
	case "version":
		return false, s.writeRecords([]*ts3.Record{ts3.NewRecord().
			Set("version", "3.13.7").
			Set("build", "1655727713").
			Set("platform", "Linux")})
	case "clientlist":
		return false, s.requireServer(func() error {
			return s.writeRecords(s.world.clientList(s.serverID))
		})
	case "clientinfo":
		return false, s.handleClientInfo(command)
	case "clientmove":
		if !s.authenticated {
			return false, s.writeStatus(statusPermissions)
		}
		return false, s.handleClientMove(command)
	case "clientkick":
		if !s.authenticated {
			return false, s.writeStatus(statusPermissions)
		}
		return false, s.handleClientKick(command)
	case "clientupdate":
		return false, s.handleClientUpdate(command)
	case "channellist":
		return false, s.requireServer(func() error {
			return s.writeRecords(s.world.channelList(s.serverID))
		})
	case "channelfind":
		return false, s.handleChannelFind(command)
	case "channelinfo":
		return false, s.handleChannelInfo(command)
	case "sendtextmessage":
		return false, s.handleSendTextMessage(command)
	case "servergrouplist":
		return false, s.requireServer(func() error {
			return s.writeRecords(s.world.serverGroupList(s.serverID))
		})
	case "servernotifyregister":
		return false, s.handleNotifyRegister(command)
	case "servernotifyunregister":
		s.registry.lock.Lock()
		s.scopes = nil
		s.registry.lock.Unlock()
		return false, s.writeStatus(statusOK)
	default:
		return false, s.writeStatus(statusCommandNotFound)
	}
}

func (s *session) requireServer(handler func() error) error {
	if s.serverID == 0 {
		return s.writeStatus(statusServerNotSelected)
	}
	return handler()
}

func (s *session) handleLogin(command *parsedCommand) error {
	username, hasUser := command.args["client_login_name"]
	password := command.args["client_login_password"]
	if !hasUser {
		return s.writeStatus(statusParameterNotFound)
	}
	if !s.world.checkLogin(username, password) {
		return s.writeStatus(statusInvalidCredentials)
	}
	s.authenticated = true
	s.username = username
	return s.writeStatus(statusOK)
}

func (s *session) handleUse(command *parsedCommand) error {
	serverID, hasID := command.intArg("sid")
	if !hasID {
		return s.writeStatus(statusParameterNotFound)
	}
	if s.world.server(serverID) == nil {
		return s.writeStatus(statusInvalidServerID)
	}
	if s.serverID != 0 && s.clientID != 0 {
		s.world.leaveQueryClient(s.serverID, s.clientID)
	}
	s.serverID = serverID
	s.clientID = s.world.joinQueryClient(serverID, s.nickname)
	return s.writeStatus(statusOK)
}

func (s *session) handleWhoami() error {
	record := ts3.NewRecord().
		SetInt("virtualserver_id", s.serverID).
		SetInt("client_id", s.clientID).
		Set("client_nickname", s.nickname).
		Set("client_login_name", s.username)
	return s.writeRecords([]*ts3.Record{record})
}

func (s *session) handleClientInfo(command *parsedCommand) error {
	return s.requireServer(func() error {
		clientID, hasID := command.intArg("clid")
		if !hasID {
			return s.writeStatus(statusParameterNotFound)
		}
		record := s.world.clientInfo(s.serverID, clientID)
		if record == nil {
			return s.writeStatus(statusInvalidClientID)
		}
		return s.writeRecords([]*ts3.Record{record})
	})
}

func (s *session) handleClientMove(command *parsedCommand) error {
	return s.requireServer(func() error {
		channelID, hasChannel := command.intArg("cid")
		clientID, hasClient := command.intArg("clid")
		if !hasChannel || !hasClient {
			return s.writeStatus(statusParameterNotFound)
		}
		notification, moved := s.world.moveClient(s.serverID, channelID, clientID, s.clientID, s.nickname)
		if !moved {
			if s.world.clientInfo(s.serverID, clientID) == nil {
				return s.writeStatus(statusInvalidClientID)
			}
			return s.writeStatus(statusInvalidChannelID)
		}
		s.registry.broadcast(s, s.serverID, "channel", channelID, "clientmoved", notification)
		return s.writeStatus(statusOK)
	})
}

func (s *session) handleClientKick(command *parsedCommand) error {
	return s.requireServer(func() error {
		clientID, hasClient := command.intArg("clid")
		reasonID, hasReason := command.intArg("reasonid")
		if !hasClient || !hasReason {
			return s.writeStatus(statusParameterNotFound)
		}
		notification, kicked := s.world.kickClient(
			s.serverID, clientID, reasonID, command.args["reasonmsg"], s.clientID, s.nickname)
		if !kicked {
			return s.writeStatus(statusInvalidClientID)
		}
		s.registry.broadcast(s, s.serverID, "server", 0, "clientleftview", notification)
		return s.writeStatus(statusOK)
	})
}

func (s *session) handleClientUpdate(command *parsedCommand) error {
	nickname, hasNickname := command.args["client_nickname"]
	if hasNickname {
		s.nickname = nickname
		if s.serverID != 0 && s.clientID != 0 {
			s.world.renameClient(s.serverID, s.clientID, nickname)
		}
	}
	return s.writeStatus(statusOK)
}

func (s *session) handleChannelFind(command *parsedCommand) error {
	return s.requireServer(func() error {
		pattern, hasPattern := command.args["pattern"]
		if !hasPattern {
			return s.writeStatus(statusParameterNotFound)
		}
		records := s.world.channelFind(s.serverID, pattern)
		if len(records) == 0 {
			return s.writeStatus(statusInvalidChannelID)
		}
		return s.writeRecords(records)
	})
}

func (s *session) handleChannelInfo(command *parsedCommand) error {
	return s.requireServer(func() error {
		channelID, hasID := command.intArg("cid")
		if !hasID {
			return s.writeStatus(statusParameterNotFound)
		}
		record := s.world.channelInfo(s.serverID, channelID)
		if record == nil {
			return s.writeStatus(statusInvalidChannelID)
		}
		return s.writeRecords([]*ts3.Record{record})
	})
}

func (s *session) handleSendTextMessage(command *parsedCommand) error {
	return s.requireServer(func() error {
		targetMode, hasMode := command.intArg("targetmode")
		message, hasMessage := command.args["msg"]
		if !hasMode || !hasMessage {
			return s.writeStatus(statusParameterNotFound)
		}
		event := ""
		channelID := 0
		switch targetMode {
		case 1:
			event = "textprivate"
		case 2:
			event = "textchannel"
		case 3:
			event = "textserver"
		default:
			return s.writeStatus(statusParameterNotFound)
		}
		target, _ := command.intArg("target")
		notification := ts3.NewRecord().
			SetInt("targetmode", targetMode).
			Set("msg", message).
			SetInt("target", target).
			SetInt("invokerid", s.clientID).
			Set("invokername", s.nickname)
		s.registry.broadcast(s, s.serverID, event, channelID, "textmessage", notification)
		return s.writeStatus(statusOK)
	})
}

func (s *session) handleNotifyRegister(command *parsedCommand) error {
	event, hasEvent := command.args["event"]
	if !hasEvent {
		return s.writeStatus(statusParameterNotFound)
	}
	switch event {
	case "server", "channel", "textserver", "textchannel", "textprivate":
	default:
		return s.writeStatus(statusParameterNotFound)
	}
	channelID, _ := command.intArg("id")
	s.registry.lock.Lock()
	s.scopes = append(s.scopes, notifyScope{event: event, channelID: channelID})
	s.registry.lock.Unlock()
	return s.writeStatus(statusOK)
}
