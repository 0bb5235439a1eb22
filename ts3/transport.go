package ts3

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	defaultQueryPort = "10011"
	defaultSSHPort   = "10022"
)

func hostWithDefaultPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}

func dialTCP(address string, timeout time.Duration) (io.ReadWriteCloser, error) {
	return net.DialTimeout("tcp", address, timeout)
}

func dialTLS(address string, config *tls.Config, timeout time.Duration) (io.ReadWriteCloser, error) {
	if config == nil {
		config = &tls.Config{InsecureSkipVerify: true}
	}
	dialer := &net.Dialer{Timeout: timeout}
	return tls.DialWithDialer(dialer, "tcp", address, config)
}

// sshTransport tunnels the query protocol through a shell channel of an
// SSH session, the transport TeamSpeak exposes on port 10022. The session
// is already authenticated, so the login command is not used on it.
type sshTransport struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func dialSSH(address, username, password string, timeout time.Duration, hostKeyCallback ssh.HostKeyCallback) (io.ReadWriteCloser, error) {
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	client, err := ssh.Dial("tcp", address, config)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, err
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, err
	}

	return &sshTransport{client: client, session: session, stdin: stdin, stdout: stdout}, nil
}

func (transport *sshTransport) Read(buffer []byte) (int, error) {
	return transport.stdout.Read(buffer)
}

func (transport *sshTransport) Write(data []byte) (int, error) {
	return transport.stdin.Write(data)
}

func (transport *sshTransport) Close() error {
	_ = transport.stdin.Close()
	_ = transport.session.Close()
	return transport.client.Close()
}
