package kraken

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/lycheetrade/krakenx/pkg/core"
	"github.com/lycheetrade/krakenx/pkg/exchange/kraken/krakenapi"
)

const WebSocketAuthURL = "wss://ws-auth.kraken.com"

const readTimeout = 30 * time.Second
const pingInterval = 20 * time.Second

type wsSubscribeRequest struct {
	Event        string         `json:"event"`
	Subscription wsSubscription `json:"subscription"`
}

type wsSubscription struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Stream maintains the authenticated private feed and forwards every order
// update batch to the reconciler. It reconnects with a fresh websocket token
// on any connection failure.
type Stream struct {
	client     *krakenapi.RestClient
	reconciler *core.Reconciler

	conn       *websocket.Conn
	connLock   sync.Mutex
	connCtx    context.Context
	connCancel context.CancelFunc

	ReconnectC chan struct{}

	connectCallbacks    []func()
	disconnectCallbacks []func()
}

func NewStream(client *krakenapi.RestClient, reconciler *core.Reconciler) *Stream {
	return &Stream{
		client:     client,
		reconciler: reconciler,
		ReconnectC: make(chan struct{}, 1),
	}
}

func (s *Stream) OnConnect(cb func()) {
	s.connectCallbacks = append(s.connectCallbacks, cb)
}

func (s *Stream) EmitConnect() {
	for _, cb := range s.connectCallbacks {
		cb()
	}
}

func (s *Stream) OnDisconnect(cb func()) {
	s.disconnectCallbacks = append(s.disconnectCallbacks, cb)
}

func (s *Stream) EmitDisconnect() {
	for _, cb := range s.disconnectCallbacks {
		cb()
	}
}

// Reconnect signals the re-connector without blocking; a pending signal is
// enough.
func (s *Stream) Reconnect() {
	select {
	case s.ReconnectC <- struct{}{}:
	default:
	}
}

func (s *Stream) Connect(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	// start one re-connector goroutine with the base context
	go s.reconnector(ctx)
	return nil
}

func (s *Stream) Close() error {
	s.connLock.Lock()
	defer s.connLock.Unlock()

	if s.connCancel != nil {
		s.connCancel()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) reconnector(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-s.ReconnectC:
			log.Warnf("received reconnect signal, reconnecting...")
			time.Sleep(3 * time.Second)

			if err := s.connect(ctx); err != nil {
				log.WithError(err).Errorf("connect error, try to reconnect again...")
				s.Reconnect()
			}
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	token, err := s.client.GetWebSocketsToken(ctx)
	if err != nil {
		return errors.Wrap(err, "websocket token request failed")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, WebSocketAuthURL, nil)
	if err != nil {
		return errors.Wrapf(err, "websocket dial %s failed", WebSocketAuthURL)
	}

	log.Infof("websocket connected: %s", WebSocketAuthURL)

	// should only start one connection one time, so we lock the mutex
	s.connLock.Lock()

	// ensure the previous context is cancelled
	if s.connCancel != nil {
		s.connCancel()
	}
	s.connCtx, s.connCancel = context.WithCancel(ctx)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.conn = conn
	s.connLock.Unlock()

	if err := s.subscribe(token.Token); err != nil {
		return err
	}

	s.EmitConnect()

	go s.read(s.connCtx)
	go s.ping(s.connCtx)
	return nil
}

func (s *Stream) subscribe(token string) error {
	req := wsSubscribeRequest{
		Event: "subscribe",
		Subscription: wsSubscription{
			Name:  "openOrders",
			Token: token,
		},
	}

	if err := s.Conn().WriteJSON(req); err != nil {
		return errors.Wrapf(err, "subscribe write error, request: %+v", req)
	}
	return nil
}

func (s *Stream) read(ctx context.Context) {
	defer func() {
		if s.connCancel != nil {
			s.connCancel()
		}
		s.EmitDisconnect()
	}()

	for {
		select {

		case <-ctx.Done():
			return

		default:
			conn := s.Conn()

			if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				log.WithError(err).Errorf("set read deadline error")
			}

			mt, message, err := conn.ReadMessage()
			if err != nil {
				switch err := err.(type) {

				case *websocket.CloseError:
					if err.Code == websocket.CloseNormalClosure {
						return
					}
					s.Reconnect()
					return

				case net.Error:
					log.WithError(err).Error("network error")
					s.Reconnect()
					return

				default:
					log.WithError(err).Error("unexpected connection error")
					s.Reconnect()
					return
				}
			}

			// skip non-text messages
			if mt != websocket.TextMessage {
				continue
			}

			s.dispatch(ctx, message)
		}
	}
}

func (s *Stream) dispatch(ctx context.Context, message []byte) {
	event, notices, err := ParseMessage(message)
	if err != nil {
		// a parse error may be partial: the well-formed entries of the batch
		// are still delivered below
		log.WithError(err).Errorf("message parse error: %s", string(message))
	}

	if event != nil {
		s.handleEvent(event)
		return
	}

	if len(notices) == 0 {
		return
	}

	if err := s.reconciler.HandleBatch(ctx, notices); err != nil {
		log.WithError(err).Errorf("order update reconciliation error: %s", string(message))
	}
}

func (s *Stream) handleEvent(event *WebSocketEvent) {
	switch event.Event {
	case "systemStatus":
		log.Infof("exchange system status: %s", event.Status)

	case "subscriptionStatus":
		if event.Status == "error" {
			log.Errorf("subscription error: %s", event.ErrorMessage)
			s.Reconnect()
			return
		}
		log.Infof("subscribed channel: %s", event.ChannelName)

	case "heartbeat":
		// ignored, the read deadline covers liveness

	default:
		log.Warnf("unhandled event: %+v", event)
	}
}

func (s *Stream) Conn() *websocket.Conn {
	s.connLock.Lock()
	conn := s.conn
	s.connLock.Unlock()
	return conn
}

func (s *Stream) ping(ctx context.Context) {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {

		case <-ctx.Done():
			log.Debug("ping worker stopped")
			return

		case <-pingTicker.C:
			conn := s.Conn()
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(3*time.Second)); err != nil {
				log.WithError(err).Error("ping error")
				s.Reconnect()
			}
		}
	}
}
