package worker

import (
	"context"
	"fmt"
	"net"

	"github.com/ethereum/go-ethereum/rpc"
)

const (
	controlNamespace = "cluster"

	methodOnline     = controlNamespace + "_online"
	methodListening  = controlNamespace + "_listening"
	methodDisconnect = controlNamespace + "_disconnect"
)

// controlService is the rpc service a supervised child talks to. One
// instance is served per child, so it only ever touches that child's
// handle.
type controlService struct {
	p *process
}

// Online reports that the child is up and running.
func (s *controlService) Online() error {
	s.p.markOnline()
	return nil
}

// Listening reports the address the child accepts connections on.
func (s *controlService) Listening(address string, port int) error {
	s.p.emit(ListeningEvent{Address: address, Port: port})
	return nil
}

// Disconnect flags the upcoming exit as voluntary.
func (s *controlService) Disconnect() error {
	s.p.voluntary.Store(true)
	return nil
}

func serveControl(conn net.Conn, p *process) (*rpc.Server, error) {
	server := rpc.NewServer()

	if err := server.RegisterName(controlNamespace, &controlService{p: p}); err != nil {
		return nil, fmt.Errorf("failed to register control service: %w", err)
	}

	go server.ServeCodec(rpc.NewCodec(conn), 0)

	return server, nil
}

func dialControl(ctx context.Context, conn net.Conn) (*rpc.Client, error) {
	client, err := rpc.DialIO(ctx, conn, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to dial control channel: %w", err)
	}

	return client, nil
}
