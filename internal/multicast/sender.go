// Package multicast is the shared broadcast channel: every logged-in client
// joins the group advertised in its login payload and receives reward
// announcements as JSON datagrams.
package multicast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/princekumarofficial/winsome/internal/types"
	"golang.org/x/net/ipv4"
)

// MaxDatagram bounds an announcement so it fits a single UDP datagram.
const MaxDatagram = 1400

var ErrTooLarge = errors.New("announcement exceeds datagram size")

// Sender writes announcements to a UDP group.
type Sender struct {
	mu     sync.Mutex
	conn   *ipv4.PacketConn
	raw    net.PacketConn
	group  *net.UDPAddr
	logger *slog.Logger
}

// NewSender opens an unbound UDP socket for sending to ip:port. ttl limits
// how many hops the datagrams travel.
func NewSender(ip string, port, ttl int, logger *slog.Logger) (*Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}

	group, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve group: %w", err)
	}

	raw, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("open socket: %w", err)
	}

	conn := ipv4.NewPacketConn(raw)
	if group.IP.IsMulticast() {
		if err := conn.SetMulticastTTL(ttl); err != nil {
			raw.Close()
			return nil, fmt.Errorf("set multicast ttl: %w", err)
		}
		if err := conn.SetMulticastLoopback(true); err != nil {
			raw.Close()
			return nil, fmt.Errorf("set multicast loopback: %w", err)
		}
	}

	return &Sender{conn: conn, raw: raw, group: group, logger: logger}, nil
}

// Announce sends event as one datagram. Delivery is best effort.
func (s *Sender) Announce(ctx context.Context, event *types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if len(data) > MaxDatagram {
		return ErrTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	if err := s.raw.SetWriteDeadline(deadline); err != nil {
		return err
	}

	if _, err := s.conn.WriteTo(data, nil, s.group); err != nil {
		return fmt.Errorf("send announcement: %w", err)
	}

	s.logger.Debug("Announcement sent",
		slog.String("type", string(event.Type)),
		slog.String("group", s.group.String()))
	return nil
}

func (s *Sender) Close() error {
	return s.conn.Close()
}
