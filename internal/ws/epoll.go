//go:build linux

package ws

import (
	"io"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// readyBatch caps how many ready participants one Wait call reports.
const readyBatch = 128

// Epoll is the readiness poller for upgraded participant sockets. The event
// loop blocks in Wait and hands each ready connection to handleConn, which
// reads exactly one frame and then calls Resume.
//
// Registration is level-triggered, so a socket that still holds unread bytes
// after handleConn returns is reported again by the next Wait. The same
// socket can be reported while a worker is still reading it;
// Connection.processing drops that second dispatch.
type Epoll struct {
	fd     int
	mu     sync.RWMutex
	conns  map[int]net.Conn // socket fd -> participant connection
	events []unix.EpollEvent
}

// NewEpoll creates the poller. It is closed by Server.Shutdown.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:     fd,
		conns:  make(map[int]net.Conn),
		events: make([]unix.EpollEvent, readyBatch),
	}, nil
}

// Add starts watching a participant socket right after its upgrade. Hangups
// are reported as readiness so handleConn sees the read error and runs the
// disconnect path.
func (e *Epoll) Add(conn net.Conn) error {
	fd := socketFD(conn)
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLHUP, Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}

	e.mu.Lock()
	e.conns[fd] = conn
	e.mu.Unlock()
	return nil
}

// Remove stops watching a socket. RemoveConnection calls it before the
// socket is closed.
func (e *Epoll) Remove(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.conns, fd)
	e.mu.Unlock()
	return nil
}

// Wait blocks until at least one participant socket has a frame or a hangup
// pending. Sockets removed after the kernel reported them are skipped.
func (e *Epoll) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(e.fd, e.events, -1)
	if err != nil {
		return nil, err
	}

	ready := make([]net.Conn, 0, n)
	e.mu.RLock()
	for _, ev := range e.events[:n] {
		if conn, ok := e.conns[int(ev.Fd)]; ok {
			ready = append(ready, conn)
		}
	}
	e.mu.RUnlock()
	return ready, nil
}

// Reader is where handleConn reads the next frame of conn from. Nothing is
// buffered ahead of the socket here, so it is the socket itself.
func (e *Epoll) Reader(conn net.Conn) io.Reader {
	return conn
}

// Resume is called by handleConn once its frame is read. Level-triggered
// registration needs no re-arming.
func (e *Epoll) Resume(net.Conn) {}

// Close releases the epoll descriptor and forgets every socket.
func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns = nil
	return unix.Close(e.fd)
}

// socketFD returns the descriptor behind conn without dup'ing it, or -1 when
// conn is not backed by a socket.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	if err := raw.Control(func(sfd uintptr) { fd = int(sfd) }); err != nil {
		return -1
	}
	return fd
}
