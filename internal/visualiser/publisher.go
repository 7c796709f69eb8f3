package visualiser

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/lostnav/internal/lost"
)

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is the per-client queue length; results are dropped
	// for clients that fall further behind.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   5,
		ClientBuffer: 10,
	}
}

// Publisher manages the gRPC server and result streaming. It implements
// l4consistency.Sink.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	resultChan chan *structpb.Struct
	clients    map[string]*clientStream
	clientsMu  sync.RWMutex

	resultCount    atomic.Uint64
	droppedResults atomic.Uint64
	clientCount    atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id       string
	resultCh chan *structpb.Struct
	doneCh   chan struct{}
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig().MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:     cfg,
		resultChan: make(chan *structpb.Struct, 100),
		clients:    make(map[string]*clientStream),
		stopCh:     make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := p.Serve(lis); err != nil {
		lis.Close()
		return err
	}
	return nil
}

// Serve serves the result stream on lis in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterService(p.server, NewServer(p))

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		opsf("gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			opsf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop gracefully stops the gRPC server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.server.Stop()
	p.wg.Wait()
	opsf("gRPC server stopped")
}

// Publish queues r for every connected client. Results are dropped rather
// than blocking the estimator when the queue is full.
func (p *Publisher) Publish(_ context.Context, r *lost.Result) error {
	if !p.running.Load() || p.clientCount.Load() == 0 {
		return nil
	}
	msg, err := ResultToStruct(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	select {
	case p.resultChan <- msg:
		p.resultCount.Add(1)
	default:
		dropped := p.droppedResults.Add(1)
		diagf("dropped result %s (total dropped: %d), queue full", r.ID, dropped)
	}
	return nil
}

// PublisherStats is a snapshot of publisher counters.
type PublisherStats struct {
	Clients   int    `json:"clients"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns the current counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Clients:   int(p.clientCount.Load()),
		Published: p.resultCount.Load(),
		Dropped:   p.droppedResults.Load(),
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case msg := <-p.resultChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.resultCh <- msg:
				default:
					p.droppedResults.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// addClient registers a new streaming client, or returns nil when the
// client limit is reached.
func (p *Publisher) addClient() *clientStream {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil
	}
	client := &clientStream{
		id:       uuid.NewString(),
		resultCh: make(chan *structpb.Struct, p.config.ClientBuffer),
		doneCh:   make(chan struct{}),
	}
	p.clients[client.id] = client
	n := p.clientCount.Add(1)
	opsf("client connected: %s (total: %d)", client.id, n)
	return client
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	client, ok := p.clients[id]
	if ok {
		close(client.doneCh)
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()
	if ok {
		n := p.clientCount.Add(-1)
		opsf("client disconnected: %s (remaining: %d)", id, n)
	}
}
