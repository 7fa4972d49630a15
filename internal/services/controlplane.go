package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	EventAutopay        = "autopay"
	EventStatus         = "status"
	EventPause          = "pause"
	EventRelease        = "release"
	EventPaymentRequest = "payment-request"
	EventPaymentError   = "payment-error"
)

// Frame exchanged on the control socket in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type paymentCommand struct {
	To     string      `json:"to"`
	Amount json.Number `json:"amount"`
}

type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// A peer that cannot take a frame within timeout is dropped by the caller
func (p *peer) send(frame []byte, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, frame)
}

// Websocket command/event interface. Peers are not authenticated; anyone who can reach
// the socket may pause, resume or pay.
type ControlPlane struct {
	addr       string
	controller *AutopayController
	payments   *PaymentExecutor
	board      *StatusBoard
	ioTimeout  time.Duration
	log        zerolog.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[*peer]struct{}
}

func NewControlPlane(addr string, controller *AutopayController, payments *PaymentExecutor, board *StatusBoard, ioTimeout time.Duration, log zerolog.Logger) *ControlPlane {
	cp := &ControlPlane{
		addr:       addr,
		controller: controller,
		payments:   payments,
		board:      board,
		ioTimeout:  ioTimeout,
		log:        log.With().Str("component", "controlplane").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		peers: map[*peer]struct{}{},
	}
	controller.SetNotifier(cp)
	return cp
}

func (cp *ControlPlane) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", cp.serveWS)
	r.Get("/status", cp.serveStatus)
	return r
}

// Binds the listener, starts autopay and serves until ctx is done
func (cp *ControlPlane) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", cp.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cp.addr, err)
	}
	return cp.Serve(ctx, ln)
}

func (cp *ControlPlane) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: cp.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		cp.closePeers()
	}()

	cp.log.Info().Str("addr", ln.Addr().String()).Msg("control plane listening")
	cp.controller.Start()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (cp *ControlPlane) Announce(event string, msg string) {
	cp.broadcast(event, msg)
}

func (cp *ControlPlane) PublishStatus() {
	cp.broadcast(EventStatus, cp.board.Status())
}

func (cp *ControlPlane) serveStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cp.board.Status()); err != nil {
		cp.log.Error().Err(err).Msg("encode status")
	}
}

func (cp *ControlPlane) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cp.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cp.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	p := &peer{conn: conn}
	cp.addPeer(p)
	defer cp.removePeer(p)

	cp.log.Info().Str("remote", r.RemoteAddr).Int("peers", cp.peerCount()).Msg("peer connected")
	cp.sendTo(p, EventAutopay, map[string]string{"is": "connected"})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			cp.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("peer disconnected")
			return
		}
		var in Envelope
		if err := json.Unmarshal(msg, &in); err != nil {
			cp.log.Warn().Err(err).Msg("malformed control message")
			continue
		}
		cp.dispatch(r.Context(), p, in)
	}
}

func (cp *ControlPlane) dispatch(ctx context.Context, p *peer, in Envelope) {
	switch in.Event {
	case EventPaymentRequest:
		cmd, err := decodePaymentCommand(in.Data)
		if err != nil {
			cp.log.Warn().Err(err).Msg("bad payment request")
			cp.sendTo(p, EventPaymentError, err.Error())
			return
		}
		pctx, cancel := context.WithTimeout(ctx, cp.ioTimeout)
		defer cancel()
		if err := cp.payments.SendPayment(pctx, cmd.To, cmd.Amount.String()); err != nil {
			cp.sendTo(p, EventPaymentError, err.Error())
		}
	case EventStatus:
		cp.PublishStatus()
	case EventPause:
		cp.log.Info().Msg("pausing at peer's request")
		cp.controller.ForcePause()
	case EventRelease:
		cp.log.Info().Msg("resuming at peer's request")
		cp.controller.ForceResume()
	default:
		cp.log.Debug().Str("event", in.Event).Msg("unknown control event")
	}
}

// Accepts the command as an object or as a JSON-encoded string of one
func decodePaymentCommand(data json.RawMessage) (paymentCommand, error) {
	var cmd paymentCommand
	if len(data) == 0 {
		return cmd, errors.New("missing payment request body")
	}
	var inner string
	if err := json.Unmarshal(data, &inner); err == nil {
		data = json.RawMessage(inner)
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("decode payment request: %w", err)
	}
	if cmd.To == "" || cmd.Amount == "" {
		return cmd, errors.New("payment request needs to and amount")
	}
	return cmd, nil
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func (cp *ControlPlane) sendTo(p *peer, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		cp.log.Error().Err(err).Str("event", event).Msg("encode frame")
		return
	}
	if err := p.send(frame, cp.ioTimeout); err != nil {
		cp.log.Warn().Err(err).Str("event", event).Msg("dropping peer")
		cp.removePeer(p)
	}
}

func (cp *ControlPlane) broadcast(event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		cp.log.Error().Err(err).Str("event", event).Msg("encode frame")
		return
	}
	cp.mu.Lock()
	peers := make([]*peer, 0, len(cp.peers))
	for p := range cp.peers {
		peers = append(peers, p)
	}
	cp.mu.Unlock()

	for _, p := range peers {
		if err := p.send(frame, cp.ioTimeout); err != nil {
			cp.log.Warn().Err(err).Str("event", event).Msg("dropping peer")
			cp.removePeer(p)
		}
	}
}

func (cp *ControlPlane) peerCount() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.peers)
}

func (cp *ControlPlane) addPeer(p *peer) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.peers[p] = struct{}{}
}

func (cp *ControlPlane) removePeer(p *peer) {
	cp.mu.Lock()
	delete(cp.peers, p)
	cp.mu.Unlock()
	_ = p.conn.Close()
}

func (cp *ControlPlane) closePeers() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for p := range cp.peers {
		_ = p.conn.Close()
	}
}
