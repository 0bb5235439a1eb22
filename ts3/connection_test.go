package ts3

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// testServer scripts the server side of a session over an in-memory pipe.
// Lines are written with the LF CR termination real servers use.
type testServer struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (server *testServer) writeLine(t *testing.T, line string) {
	t.Helper()
	if _, err := server.conn.Write([]byte(line + "\n\r")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

func (server *testServer) readLine(t *testing.T) string {
	t.Helper()
	line, err := server.reader.ReadString('\n')
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	return strings.Trim(line, "\r\n")
}

func (server *testServer) expectLine(t *testing.T, want string) {
	t.Helper()
	if got := server.readLine(t); got != want {
		t.Fatalf("server expected line %q, got %q", want, got)
	}
}

func newTestSession(t *testing.T) (*Connection, *testServer) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	server := &testServer{conn: serverSide, reader: bufio.NewReader(serverSide)}

	conn := NewConnection().SetLogger(discardLogger())

	started := make(chan error, 1)
	go func() { started <- conn.start(clientSide, false) }()

	server.writeLine(t, "TS3")
	server.writeLine(t, "Welcome to the TeamSpeak 3 ServerQuery interface.")

	if err := <-started; err != nil {
		t.Fatalf("session start failed: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		_ = serverSide.Close()
	})

	return conn, server
}

type executeResult struct {
	records []*Record
	status  Status
	err     error
}

func executeAsync(conn *Connection, command *Command) chan executeResult {
	result := make(chan executeResult, 1)
	go func() {
		records, status, err := conn.Execute(command)
		result <- executeResult{records: records, status: status, err: err}
	}()
	return result
}

func TestStartRejectsUnexpectedGreeting(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	conn := NewConnection().SetLogger(discardLogger())
	started := make(chan error, 1)
	go func() { started <- conn.start(clientSide, false) }()

	if _, err := serverSide.Write([]byte("SMTP ready\n\r")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	if err := <-started; err == nil {
		t.Fatalf("expected a protocol error for a non-TS3 greeting")
	}
}

func TestExecuteReturnsRecordsAndStatus(t *testing.T) {
	conn, server := newTestSession(t)

	result := executeAsync(conn, NewCommand("clientlist"))
	server.expectLine(t, "clientlist")
	server.writeLine(t, `clid=1 client_nickname=Bo\sb|clid=2 client_nickname=other`)
	server.writeLine(t, "error id=0 msg=ok")

	reply := <-result
	if reply.err != nil {
		t.Fatalf("execute failed: %v", reply.err)
	}
	if !reply.status.OK() {
		t.Fatalf("expected success status, got %+v", reply.status)
	}
	if len(reply.records) != 2 {
		t.Fatalf("expected two records, got %d", len(reply.records))
	}
	if nickname := reply.records[0].getString("client_nickname"); nickname != "Bo b" {
		t.Fatalf("expected unescaped nickname, got %q", nickname)
	}
}

func TestExecuteReturnsNonZeroStatusAsData(t *testing.T) {
	conn, server := newTestSession(t)

	result := executeAsync(conn, NewCommand("use").SetInt("sid", 99))
	server.expectLine(t, "use sid=99")
	server.writeLine(t, `error id=1024 msg=invalid\sserverID`)

	reply := <-result
	if reply.err != nil {
		t.Fatalf("non-zero status must not fail Execute, got %v", reply.err)
	}
	if reply.status.ID != 1024 || reply.status.Msg != "invalid serverID" {
		t.Fatalf("unexpected status %+v", reply.status)
	}
}

func TestExecuteInterleavedNotificationsKeepOrder(t *testing.T) {
	conn, server := newTestSession(t)

	var mu sync.Mutex
	var nicknames []string
	conn.Subscribe(AllEvents(), func(event Event) error {
		entered := event.(ClientEnteredEvent)
		mu.Lock()
		nicknames = append(nicknames, entered.Nickname)
		mu.Unlock()
		return nil
	})

	result := executeAsync(conn, NewCommand("channellist"))
	server.expectLine(t, "channellist")
	server.writeLine(t, "notifycliententerview clid=7 client_nickname=first")
	server.writeLine(t, "cid=1 channel_name=Lobby")
	server.writeLine(t, "notifycliententerview clid=8 client_nickname=second")
	server.writeLine(t, "cid=2 channel_name=AFK")
	server.writeLine(t, "notifycliententerview clid=9 client_nickname=third")
	server.writeLine(t, "error id=0 msg=ok")

	reply := <-result
	if reply.err != nil {
		t.Fatalf("execute failed: %v", reply.err)
	}
	if len(reply.records) != 2 {
		t.Fatalf("expected exactly the two data records, got %d", len(reply.records))
	}
	if name := reply.records[0].getString("channel_name"); name != "Lobby" {
		t.Fatalf("expected data records in wire order, got %q first", name)
	}
	if name := reply.records[1].getString("channel_name"); name != "AFK" {
		t.Fatalf("expected data records in wire order, got %q second", name)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(nicknames) != 3 || nicknames[0] != "first" || nicknames[1] != "second" || nicknames[2] != "third" {
		t.Fatalf("expected notifications dispatched in arrival order, got %v", nicknames)
	}
}

func TestExecuteSingleFlight(t *testing.T) {
	conn, server := newTestSession(t)

	first := executeAsync(conn, NewCommand("whoami"))
	server.expectLine(t, "whoami")

	// Queue the second command while the first reply is still pending.
	second := executeAsync(conn, NewCommand("version"))

	server.writeLine(t, "client_id=1 client_nickname=one")
	server.writeLine(t, "error id=0 msg=ok")

	server.expectLine(t, "version")
	server.writeLine(t, "version=3.13.7 build=1655727713")
	server.writeLine(t, "error id=0 msg=ok")

	firstReply := <-first
	secondReply := <-second
	if firstReply.err != nil || secondReply.err != nil {
		t.Fatalf("execute failed: %v / %v", firstReply.err, secondReply.err)
	}
	if _, hasClientID := firstReply.records[0].Get("client_id"); !hasClientID {
		t.Fatalf("first caller received the wrong reply: %v", firstReply.records[0])
	}
	if _, hasVersion := secondReply.records[0].Get("version"); !hasVersion {
		t.Fatalf("second caller received the wrong reply: %v", secondReply.records[0])
	}
}

func TestDisconnectFailsPendingAndFutureCommands(t *testing.T) {
	conn, server := newTestSession(t)

	var handlerMu sync.Mutex
	var disconnectErr error
	conn.SetDisconnectHandler(func(_ *Connection, err error) {
		handlerMu.Lock()
		disconnectErr = err
		handlerMu.Unlock()
	})

	pending := executeAsync(conn, NewCommand("whoami"))
	server.expectLine(t, "whoami")
	_ = server.conn.Close()

	reply := <-pending
	if !IsDisconnected(reply.err) {
		t.Fatalf("expected DisconnectedError for the pending command, got %v", reply.err)
	}

	if _, _, err := conn.Execute(NewCommand("whoami")); !IsDisconnected(err) {
		t.Fatalf("expected DisconnectedError for a subsequent command, got %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		handlerMu.Lock()
		err := disconnectErr
		handlerMu.Unlock()
		if err != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("disconnect handler was not invoked")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestExecuteBeforeConnectFails(t *testing.T) {
	conn := NewConnection().SetLogger(discardLogger())
	if _, _, err := conn.Execute(NewCommand("whoami")); !IsDisconnected(err) {
		t.Fatalf("expected DisconnectedError before connect, got %v", err)
	}
	_ = conn.Close()
}

func TestExecuteRejectsInvalidCommand(t *testing.T) {
	conn := NewConnection().SetLogger(discardLogger())
	defer conn.Close()

	if _, _, err := conn.Execute(nil); err == nil {
		t.Fatalf("expected an error for a nil command")
	}
	if _, _, err := conn.Execute(NewCommand("")); err == nil {
		t.Fatalf("expected an error for an empty verb")
	}
}

func TestCloseIsIdempotentAndUnblocksWaiters(t *testing.T) {
	conn, server := newTestSession(t)

	pending := executeAsync(conn, NewCommand("whoami"))
	server.expectLine(t, "whoami")

	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	reply := <-pending
	if !IsDisconnected(reply.err) {
		t.Fatalf("expected the waiter to observe DisconnectedError, got %v", reply.err)
	}
}

func TestMalformedLinesAreDroppedWithoutAbortingReply(t *testing.T) {
	conn, server := newTestSession(t)

	var reportedMu sync.Mutex
	reported := 0
	conn.SetErrorHandler(func(error) {
		reportedMu.Lock()
		reported++
		reportedMu.Unlock()
	})

	result := executeAsync(conn, NewCommand("whoami"))
	server.expectLine(t, "whoami")
	server.writeLine(t, `client_id=1 client_nickname=bad\q`)
	server.writeLine(t, `notifycliententerview client_nickname=also\`)
	server.writeLine(t, "client_id=2")
	server.writeLine(t, "error id=0 msg=ok")

	reply := <-result
	if reply.err != nil {
		t.Fatalf("recoverable parse failures must not fail the command: %v", reply.err)
	}
	if len(reply.records) != 1 {
		t.Fatalf("expected only the well-formed record, got %d", len(reply.records))
	}
	if id, _ := reply.records[0].GetInt("client_id"); id != 2 {
		t.Fatalf("expected the malformed line dropped, kept record %v", reply.records[0])
	}

	reportedMu.Lock()
	defer reportedMu.Unlock()
	if reported != 2 {
		t.Fatalf("expected both malformed lines reported, got %d", reported)
	}
}
