package ts3

import (
	"sync"
	"time"
)

// DefaultKeepaliveInterval keeps an idle session well within the
// server's query timeout.
const DefaultKeepaliveInterval = 5 * time.Second

// keepaliveScheduler periodically issues a whoami through the correlator
// and discards the reply. It stops itself when the session dies.
type keepaliveScheduler struct {
	conn     *Connection
	interval time.Duration
	stopOnce sync.Once
	stopped  chan struct{}
}

// StartKeepalive launches the keepalive scheduler with the given period,
// replacing a previously running one. A non-positive interval selects
// DefaultKeepaliveInterval.
func (conn *Connection) StartKeepalive(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}

	scheduler := &keepaliveScheduler{
		conn:     conn,
		interval: interval,
		stopped:  make(chan struct{}),
	}

	conn.stateLock.Lock()
	previous := conn.keepalive
	conn.keepalive = scheduler
	conn.stateLock.Unlock()

	if previous != nil {
		previous.stop()
	}

	go scheduler.run()
}

// StopKeepalive marks the schedule inactive. It never waits for an
// in-flight tick to finish.
func (conn *Connection) StopKeepalive() {
	conn.stateLock.Lock()
	scheduler := conn.keepalive
	conn.keepalive = nil
	conn.stateLock.Unlock()

	if scheduler != nil {
		scheduler.stop()
	}
}

func (scheduler *keepaliveScheduler) run() {
	ticker := time.NewTicker(scheduler.interval)
	defer ticker.Stop()

	for {
		select {
		case <-scheduler.stopped:
			return
		case <-scheduler.conn.done:
			return
		case <-ticker.C:
			if _, _, err := scheduler.conn.Execute(NewCommand("whoami")); err != nil {
				// Only a dead session errors here; the read loop has
				// already torn the connection down.
				return
			}
		}
	}
}

func (scheduler *keepaliveScheduler) stop() {
	scheduler.stopOnce.Do(func() { close(scheduler.stopped) })
}
