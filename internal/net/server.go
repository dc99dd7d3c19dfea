package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/eventbus"
	"fenrir/internal/utils"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers     = 10
	defaultConnTimeout  = 30 * time.Second
	defaultDepthN       = 25
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
)

// clientSession tracks one open TCP connection and the live
// subscriptions it owns, so Unsubscribe can run on disconnect.
type clientSession struct {
	conn          net.Conn
	mu            sync.Mutex
	subscriptions []*eventbus.Subscription
}

// Server is the TCP front end for one engine.Engine. It generalizes
// _examples/saiputravu-Exchange/internal/net/server.go's
// worker-pool-per-connection accept loop to the wider message set of
// SPEC_FULL.md §6 (market-data queries and live subscriptions, in
// addition to submit/cancel).
type Server struct {
	address string
	port    int
	eng     *engine.Engine
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	sessionsMu sync.Mutex
	sessions   map[string]*clientSession
}

func New(address string, port int, eng *engine.Engine) *Server {
	return &Server{
		address:  address,
		port:     port,
		eng:      eng,
		pool:     utils.NewWorkerPool(defaultNWorkers),
		sessions: make(map[string]*clientSession),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run accepts connections until ctx is cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			log.Info().Str("address", conn.RemoteAddr().String()).Msg("new client connected")
			s.addSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) addSession(conn net.Conn) *clientSession {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sess := &clientSession{conn: conn}
	s.sessions[conn.RemoteAddr().String()] = sess
	return sess
}

func (s *Server) closeSession(addr string) {
	s.sessionsMu.Lock()
	sess, ok := s.sessions[addr]
	delete(s.sessions, addr)
	s.sessionsMu.Unlock()
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, sub := range sess.subscriptions {
		sub.Unsubscribe()
	}
}

// handleConnection reads and dispatches exactly one frame per call,
// then requeues conn for the next one, mirroring the teacher's
// single-read-then-requeue worker shape.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	addr := conn.RemoteAddr().String()
	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("address", addr).Msg("failed setting read deadline")
		conn.Close()
		s.closeSession(addr)
		return nil
	}

	buf := make([]byte, maxRecvSize)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		s.closeSession(addr)
		return nil
	}

	parsed, err := ParseMessage(buf[:n])
	if err != nil {
		conn.Write(EncodeErrorReport(err))
		s.pool.AddTask(conn)
		return nil
	}

	s.dispatch(conn, addr, parsed)
	s.pool.AddTask(conn)
	return nil
}

func (s *Server) dispatch(conn net.Conn, addr string, msg ParsedMessage) {
	switch msg.Type {
	case Heartbeat:
	case NewOrder:
		s.handleNewOrder(conn, msg.NewOrder)
	case CancelOrder:
		s.handleCancelOrder(conn, msg.CancelOrder)
	case GetDepth:
		n := msg.SymbolQuery.Depth
		if n <= 0 {
			n = defaultDepthN
		}
		bids, asks, err := s.eng.GetDepth(msg.SymbolQuery.Symbol, n)
		if err != nil {
			conn.Write(EncodeRejectReport(err.Error()))
			return
		}
		conn.Write(EncodeDepthReport(bids, asks))
	case GetBBO:
		bbo, err := s.eng.GetBBO(msg.SymbolQuery.Symbol)
		if err != nil {
			conn.Write(EncodeRejectReport(err.Error()))
			return
		}
		conn.Write(EncodeBBOReport(bbo))
	case GetRecentTrades:
		trades, err := s.eng.GetRecentTrades(msg.SymbolQuery.Symbol)
		if err != nil {
			conn.Write(EncodeRejectReport(err.Error()))
			return
		}
		conn.Write(EncodeRecentTradesReport(trades))
	case Subscribe:
		s.handleSubscribe(conn, addr, msg.Subscribe)
	default:
		conn.Write(EncodeErrorReport(ErrInvalidMessageType))
	}
}

func (s *Server) handleNewOrder(conn net.Conn, req NewOrderRequest) {
	result := s.eng.Submit(engine.OrderRequest{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Kind:       req.Kind,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		HasLimit:   req.HasLimit,
		StopPrice:  req.StopPrice,
		HasStop:    req.HasStop,
		Owner:      req.Owner,
	})
	if !result.Accepted {
		conn.Write(EncodeRejectReport(result.RejectReason))
		return
	}
	conn.Write(EncodeExecutionReport(result.OrderID, result.Order.Status, result.Trades))
}

func (s *Server) handleCancelOrder(conn net.Conn, req CancelOrderRequest) {
	result := s.eng.Cancel(req.Symbol, req.OrderID.String())
	if !result.Ok {
		reason := "not found"
		if result.Err != nil {
			reason = result.Err.Error()
		}
		conn.Write(EncodeRejectReport(reason))
		return
	}
	conn.Write(EncodeExecutionReport(req.OrderID, common.Cancelled, nil))
}

// handleSubscribe spawns a dedicated goroutine that pushes live events
// for this subscription back over conn until the connection closes.
// Unlike the request/response messages, this runs outside the
// read-then-requeue worker loop for the lifetime of the subscription.
func (s *Server) handleSubscribe(conn net.Conn, addr string, req SubscribeRequest) {
	sub := s.eng.Subscribe(req.Topics, req.Symbol, eventbus.DefaultBufferSize)

	s.sessionsMu.Lock()
	sess, ok := s.sessions[addr]
	s.sessionsMu.Unlock()
	if ok {
		sess.mu.Lock()
		sess.subscriptions = append(sess.subscriptions, sub)
		sess.mu.Unlock()
	}

	go func() {
		for ev := range sub.Events() {
			var frame []byte
			switch ev.Kind {
			case eventbus.KindTrade:
				frame = EncodeTradeReport(ev.Trade)
			case eventbus.KindDepth:
				frame = EncodeDepthReport([]common.DepthLevel{{Price: ev.Delta.Price, Quantity: ev.Delta.NewAggregateQuantity}}, nil)
			case eventbus.KindBBO:
				frame = EncodeBBOReport(ev.BBO)
			case eventbus.KindLagged:
				frame = EncodeLaggedReport(ev.Lagged)
			}
			if _, err := conn.Write(frame); err != nil {
				sub.Unsubscribe()
				return
			}
		}
	}()
}
