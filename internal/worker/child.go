package worker

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lambda-feedback/hellojoe/util"
)

// IsChild reports whether the current process was spawned by a supervisor.
func IsChild() bool {
	return util.Truthy(os.Getenv(EnvChild))
}

// Child is the worker side of a supervised process. It talks to the
// supervising process over the inherited control socket.
type Child struct {
	id       int
	listener net.Listener
	client   *rpc.Client

	// conn is the control socket. The rpc client does not own it, and
	// the client's read loop only ends once conn is closed.
	conn net.Conn
}

// Connect connects to the supervisor that spawned the current process,
// and picks up the shared listener, if one was inherited.
func Connect(ctx context.Context) (*Child, error) {
	if !IsChild() {
		return nil, ErrNotChild
	}

	fd, err := strconv.Atoi(os.Getenv(EnvChildFD))
	if err != nil || fd < listenFD {
		return nil, ErrInvalidControlFD
	}

	f := os.NewFile(uintptr(fd), "control")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("control socket: %w", err)
	}

	client, err := dialControl(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	listener, err := inheritedListener()
	if err != nil {
		conn.Close()
		client.Close()
		return nil, err
	}

	return newChild(os.Getpid(), listener, client, conn), nil
}

func newChild(id int, listener net.Listener, client *rpc.Client, conn net.Conn) *Child {
	return &Child{
		id:       id,
		listener: listener,
		client:   client,
		conn:     conn,
	}
}

// inheritedListener returns the shared socket, or nil if none was passed.
func inheritedListener() (net.Listener, error) {
	// socket activation convention: LISTEN_FDS=1 means fd 3 is our socket
	if os.Getenv(EnvListenFDs) != "1" {
		return nil, nil
	}

	f := os.NewFile(listenFD, "shared-socket")
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("shared socket: %w", err)
	}

	return ln, nil
}

// ID returns the identifier the supervisor knows this worker by.
func (c *Child) ID() int {
	return c.id
}

// Listener returns the socket shared with the sibling workers.
func (c *Child) Listener() (net.Listener, error) {
	if c.listener == nil {
		return nil, ErrNoListener
	}

	return c.listener, nil
}

// Online reports to the supervisor that the worker is up and running.
func (c *Child) Online(ctx context.Context) error {
	return c.client.CallContext(ctx, nil, methodOnline)
}

// Listening reports the address the worker accepts connections on.
func (c *Child) Listening(ctx context.Context, addr net.Addr) error {
	address, port := splitAddr(addr)
	return c.client.CallContext(ctx, nil, methodListening, address, port)
}

// Disconnect tells the supervisor that the worker is about to exit on
// its own accord. The supervisor will not replace it.
func (c *Child) Disconnect(ctx context.Context) error {
	return c.client.CallContext(ctx, nil, methodDisconnect)
}

// Close closes the control channel and the shared listener.
func (c *Child) Close() error {
	// unblocks the read loop, otherwise client.Close waits forever
	connErr := c.conn.Close()
	c.client.Close()

	if c.listener != nil {
		if err := c.listener.Close(); err != nil {
			return err
		}
	}

	return connErr
}

func splitAddr(addr net.Addr) (string, int) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}

	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}

	p, _ := strconv.Atoi(port)

	return host, p
}
