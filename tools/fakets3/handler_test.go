package main

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

func TestParseCommandLine(t *testing.T) {
	command, err := parseCommandLine(`clientkick clid=3 reasonmsg=be\snice -continueonerror`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if command.verb != "clientkick" {
		t.Fatalf("unexpected verb %q", command.verb)
	}
	if command.args["reasonmsg"] != "be nice" {
		t.Fatalf("value not unescaped: %q", command.args["reasonmsg"])
	}
	if clientID, _ := command.intArg("clid"); clientID != 3 {
		t.Fatalf("unexpected clid %d", clientID)
	}
	if len(command.flags) != 1 || command.flags[0] != "continueonerror" {
		t.Fatalf("flags not parsed: %v", command.flags)
	}
}

func TestParseCommandLineRejectsBadEscape(t *testing.T) {
	if _, err := parseCommandLine(`clientupdate client_nickname=bad\q`); err == nil {
		t.Fatalf("expected an escape error")
	}
}

// scriptedClient drives one handler connection over an in-memory pipe.
type scriptedClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newScriptedClient(t *testing.T, config *worldConfig) *scriptedClient {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	registry := newSessionRegistry()
	go handleConnection(serverSide, newWorld(config), registry, "Welcome.", false)
	t.Cleanup(func() { _ = clientSide.Close() })

	client := &scriptedClient{conn: clientSide, reader: bufio.NewReader(clientSide)}
	client.expectLine(t, "TS3")
	client.expectLine(t, "Welcome.")
	return client
}

func (client *scriptedClient) sendLine(t *testing.T, line string) {
	t.Helper()
	if _, err := client.conn.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
}

func (client *scriptedClient) readLine(t *testing.T) string {
	t.Helper()
	line, err := client.reader.ReadString('\n')
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	return strings.Trim(line, "\r\n")
}

func (client *scriptedClient) expectLine(t *testing.T, want string) {
	t.Helper()
	if got := client.readLine(t); got != want {
		t.Fatalf("expected line %q, got %q", want, got)
	}
}

func TestSessionLoginUseWhoami(t *testing.T) {
	client := newScriptedClient(t, defaultWorldConfig())

	client.sendLine(t, "login client_login_name=serveradmin client_login_password=pw")
	client.expectLine(t, "error id=0 msg=ok")

	client.sendLine(t, "use sid=1")
	client.expectLine(t, "error id=0 msg=ok")

	client.sendLine(t, "whoami")
	line := client.readLine(t)
	if !strings.Contains(line, "virtualserver_id=1") || !strings.Contains(line, "client_login_name=serveradmin") {
		t.Fatalf("unexpected whoami record %q", line)
	}
	client.expectLine(t, "error id=0 msg=ok")
}

func TestSessionRejectsBadCredentials(t *testing.T) {
	config := defaultWorldConfig()
	config.Credentials = map[string]string{"serveradmin": "right"}
	client := newScriptedClient(t, config)

	client.sendLine(t, "login client_login_name=serveradmin client_login_password=wrong")
	client.expectLine(t, `error id=520 msg=invalid\sloginname\sor\spassword`)

	client.sendLine(t, "login client_login_name=serveradmin client_login_password=right")
	client.expectLine(t, "error id=0 msg=ok")
}

func TestSessionClientListIncludesQueryClient(t *testing.T) {
	client := newScriptedClient(t, defaultWorldConfig())

	client.sendLine(t, "use sid=1")
	client.expectLine(t, "error id=0 msg=ok")

	client.sendLine(t, "clientlist")
	line := client.readLine(t)
	if !strings.Contains(line, "client_nickname=Resident") {
		t.Fatalf("expected the resident client, got %q", line)
	}
	if !strings.Contains(line, "client_type=1") {
		t.Fatalf("expected the query client itself listed, got %q", line)
	}
	client.expectLine(t, "error id=0 msg=ok")
}

func TestSessionCommandErrors(t *testing.T) {
	client := newScriptedClient(t, defaultWorldConfig())

	client.sendLine(t, "frobnicate")
	client.expectLine(t, `error id=256 msg=command\snot\sfound`)

	client.sendLine(t, "clientlist")
	client.expectLine(t, `error id=1281 msg=server\sis\snot\sselected`)

	client.sendLine(t, "use sid=99")
	client.expectLine(t, `error id=1024 msg=invalid\sserverID`)

	client.sendLine(t, "clientkick clid=2 reasonid=5")
	client.expectLine(t, `error id=2568 msg=insufficient\sclient\spermissions`)
}

func TestSessionChannelFindAndInfo(t *testing.T) {
	client := newScriptedClient(t, defaultWorldConfig())

	client.sendLine(t, "use sid=1")
	client.expectLine(t, "error id=0 msg=ok")

	client.sendLine(t, "channelfind pattern=Lob")
	client.expectLine(t, "cid=1 channel_name=Lobby")
	client.expectLine(t, "error id=0 msg=ok")

	client.sendLine(t, "channelfind pattern=Nope")
	client.expectLine(t, `error id=768 msg=invalid\schannelID`)

	client.sendLine(t, "channelinfo cid=1")
	line := client.readLine(t)
	if !strings.Contains(line, `channel_description=Default\sChannel`) {
		t.Fatalf("expected the channel description, got %q", line)
	}
	client.expectLine(t, "error id=0 msg=ok")
}

func TestSessionQuit(t *testing.T) {
	client := newScriptedClient(t, defaultWorldConfig())

	client.sendLine(t, "quit")
	client.expectLine(t, "error id=0 msg=ok")

	if _, err := client.reader.ReadString('\n'); err == nil {
		t.Fatalf("expected the server to close the connection after quit")
	}
}
