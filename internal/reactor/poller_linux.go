//go:build linux

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

// epollPoller is a level-triggered epoll set plus an eventfd used to
// interrupt EpollWait.
type epollPoller struct {
	epfd   int
	wakefd int
	closed atomic.Bool

	mu    sync.Mutex
	conns map[int]*Conn

	ln   net.Listener
	lnfd int

	events []unix.EpollEvent
}

func newEpollPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("register eventfd: %w", err)
	}

	return &epollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		conns:  make(map[int]*Conn),
		lnfd:   -1,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

// sysfd extracts the descriptor of a socket without taking it out of the
// runtime's own poller.
func sysfd(v interface{}) (int, error) {
	sc, ok := v.(syscall.Conn)
	if !ok {
		return -1, errors.New("connection does not expose a file descriptor")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return -1, err
	}
	return fd, nil
}

func (p *epollPoller) Watch(ln net.Listener) error {
	fd, err := sysfd(ln)
	if err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}
	p.ln, p.lnfd = ln, fd
	return nil
}

func (p *epollPoller) Add(c *Conn) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if c.fd < 0 {
		fd, err := sysfd(c.nc)
		if err != nil {
			return err
		}
		c.fd = fd
	}

	var events uint32 = unix.EPOLLIN | unix.EPOLLRDHUP
	if c.interest == Write {
		events = unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(c.fd)}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, c.fd, &ev); err != nil {
		return fmt.Errorf("epoll add fd %d: %w", c.fd, err)
	}
	p.conns[c.fd] = c
	return nil
}

func (p *epollPoller) Remove(c *Conn) error {
	if c.fd < 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[c.fd] != c {
		return nil
	}
	delete(p.conns, c.fd)

	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("epoll del fd %d: %w", c.fd, err)
	}
	return nil
}

func (p *epollPoller) Wait() ([]*Conn, []net.Conn, error) {
	if p.closed.Load() {
		return nil, nil, ErrPollerClosed
	}

	n, err := unix.EpollWait(p.epfd, p.events, -1)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("epoll wait: %w", err)
	}

	var (
		ready    []*Conn
		accepted []net.Conn
	)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		switch {
		case fd == p.wakefd:
			var buf [8]byte
			unix.Read(p.wakefd, buf[:])
		case fd == p.lnfd:
			// Level triggered: one accept per wakeup, the rest are
			// reported again on the next wait.
			nc, err := p.ln.Accept()
			if err == nil {
				accepted = append(accepted, nc)
			}
		default:
			if c, ok := p.conns[fd]; ok {
				ready = append(ready, c)
			}
		}
	}

	if p.closed.Load() {
		return ready, accepted, ErrPollerClosed
	}
	return ready, accepted, nil
}

func (p *epollPoller) Wake() error {
	if p.closed.Load() {
		return nil
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// Counter saturated; a wakeup is already pending.
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.Wake()
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}
