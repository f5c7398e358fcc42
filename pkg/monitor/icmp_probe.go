package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// DefaultAttemptTimeout is how long the ICMP probe waits for each echo reply.
const DefaultAttemptTimeout = 2 * time.Second

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// packetConn is the subset of *icmp.PacketConn used by ICMPProbe.
type packetConn interface {
	WriteTo(b []byte, dst net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// ICMPProbe sends echo requests natively instead of spawning ping.
type ICMPProbe struct {
	Attempts       int
	AttemptTimeout time.Duration
	// Privileged selects a raw socket instead of an unprivileged datagram socket.
	Privileged bool

	timeout time.Duration

	// Overridable in tests
	resolve func(ctx context.Context, host string) (net.IP, error)
	listen  func(network, address string) (packetConn, error)
}

func (p *ICMPProbe) Name() string {
	return ProbeTypeICMP
}

func (p *ICMPProbe) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

func (p *ICMPProbe) Probe(ctx context.Context, host string) Result {
	start := time.Now()
	host = strings.TrimSpace(host)

	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	attemptTimeout := p.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	timeout := p.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if host == "" {
		return failed(host, start, attempts, errors.New("empty host"))
	}

	resolve := p.resolve
	if resolve == nil {
		resolve = resolveIP
	}
	ip, err := resolve(ctx, host)
	if err != nil {
		return failed(host, start, attempts, fmt.Errorf("resolve %s: %w", host, err))
	}

	v6 := ip.To4() == nil
	network, address := p.network(v6)

	listen := p.listen
	if listen == nil {
		listen = listenICMP
	}
	conn, err := listen(network, address)
	if err != nil {
		return failed(host, start, attempts, fmt.Errorf("listen %s: %w", network, err))
	}
	defer func() { _ = conn.Close() }()

	var dst net.Addr = &net.IPAddr{IP: ip}
	if !p.Privileged {
		dst = &net.UDPAddr{IP: ip}
	}

	id := os.Getpid() & 0xffff
	var rtts []time.Duration
	var lastErr error

	for seq := 1; seq <= attempts; seq++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		rtt, err := p.echo(ctx, conn, dst, v6, id, seq, attemptTimeout)
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) && opErr.Op == "write" {
				// Sending failed outright, e.g. no route or permission denied.
				return failed(host, start, attempts, err)
			}
			lastErr = err
			continue
		}
		rtts = append(rtts, rtt)
	}

	if len(rtts) == 0 && errors.Is(lastErr, context.Canceled) {
		return failed(host, start, attempts, lastErr)
	}

	return Result{
		Reachable: len(rtts) > 0,
		Attempts:  attempts,
		Received:  len(rtts),
		Duration:  meanRTT(rtts),
		Target:    host,
		Timestamp: start,
	}
}

func (p *ICMPProbe) network(v6 bool) (string, string) {
	switch {
	case v6 && p.Privileged:
		return "ip6:ipv6-icmp", "::"
	case v6:
		return "udp6", "::"
	case p.Privileged:
		return "ip4:icmp", "0.0.0.0"
	default:
		return "udp4", "0.0.0.0"
	}
}

// echo sends one echo request and waits for the matching reply.
func (p *ICMPProbe) echo(ctx context.Context, conn packetConn, dst net.Addr, v6 bool, id, seq int, timeout time.Duration) (time.Duration, error) {
	var reqType icmp.Type = ipv4.ICMPTypeEcho
	proto := protocolICMP
	if v6 {
		reqType = ipv6.ICMPTypeEchoRequest
		proto = protocolIPv6ICMP
	}

	msg := icmp.Message{
		Type: reqType,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("pingwatch")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	sent := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return 0, err
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, err
		}
		reply, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil {
			continue
		}
		if reply.Type != ipv4.ICMPTypeEchoReply && reply.Type != ipv6.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		// Unprivileged sockets rewrite the identifier, so only the sequence is trusted there.
		if !ok || echo.Seq != seq || (p.Privileged && echo.ID != id) {
			continue
		}
		return time.Since(sent), nil
	}
}

func resolveIP(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP, nil
	}
	return nil, fmt.Errorf("no addresses for %s", host)
}

func listenICMP(network, address string) (packetConn, error) {
	return icmp.ListenPacket(network, address)
}
