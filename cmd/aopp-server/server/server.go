package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/signal"
)

const writeTimeout = 5 * time.Second

// Server serves the JSON-RPC API on /rpc and pushes signals to every websocket connected to
// /signals.
type Server struct {
	logger          *zap.Logger
	rpc             http.Handler
	server          *http.Server
	listener        net.Listener
	mux             *http.ServeMux
	connectionsLock sync.Mutex
	connections     map[*websocket.Conn]struct{}
	address         string
}

func NewServer(logger *zap.Logger, rpc http.Handler) *Server {
	return &Server{
		logger:      logger.Named("server"),
		rpc:         rpc,
		connections: make(map[*websocket.Conn]struct{}, 1),
	}
}

func (s *Server) Address() string {
	return s.address
}

func (s *Server) Port() (int, error) {
	_, portString, err := net.SplitHostPort(s.address)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portString)
}

func (s *Server) Setup() {
	signal.SetSignalHandler(s.signalHandler)
}

func (s *Server) signalHandler(data []byte) {
	s.connectionsLock.Lock()
	defer s.connectionsLock.Unlock()

	for connection := range s.connections {
		err := connection.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err == nil {
			err = connection.WriteMessage(websocket.TextMessage, data)
		}
		if err != nil {
			s.logger.Error("failed to write signal message", zap.Error(err))
			s.dropConnection(connection)
		}
	}
}

// dropConnection must be called with connectionsLock held.
func (s *Server) dropConnection(connection *websocket.Conn) {
	delete(s.connections, connection)
	err := connection.Close()
	if err != nil {
		s.logger.Debug("failed to close connection", zap.Error(err))
	}
}

func (s *Server) Listen(address string) error {
	if s.server != nil {
		return errors.New("server already started")
	}

	_, _, err := net.SplitHostPort(address)
	if err != nil {
		return errors.Wrap(err, "invalid address")
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/signals", s.signals)
	s.mux.Handle("/rpc", s.rpc)

	s.listener, err = net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	s.server = &http.Server{
		Addr:              address,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.address = s.listener.Addr().String()

	return nil
}

func (s *Server) Serve() {
	err := s.server.Serve(s.listener)
	if !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server closed with error", zap.Error(err))
	}
}

func (s *Server) Stop(ctx context.Context) {
	signal.SetSignalHandler(nil)

	s.connectionsLock.Lock()
	for connection := range s.connections {
		s.dropConnection(connection)
	}
	s.connectionsLock.Unlock()

	err := s.server.Shutdown(ctx)
	if err != nil {
		s.logger.Error("failed to shutdown server", zap.Error(err))
	}

	s.server = nil
	s.address = ""
}

func (s *Server) signals(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	connection, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	s.logger.Debug("new websocket connection", zap.String("remote", r.RemoteAddr))

	s.connectionsLock.Lock()
	s.connections[connection] = struct{}{}
	s.connectionsLock.Unlock()

	go s.drain(connection)
}

// drain reads until the client goes away so that closed connections are noticed before the next
// signal.
func (s *Server) drain(connection *websocket.Conn) {
	for {
		if _, _, err := connection.NextReader(); err != nil {
			s.connectionsLock.Lock()
			if _, ok := s.connections[connection]; ok {
				s.dropConnection(connection)
			}
			s.connectionsLock.Unlock()
			return
		}
	}
}

// Connections returns the number of connected signal clients.
func (s *Server) Connections() int {
	s.connectionsLock.Lock()
	defer s.connectionsLock.Unlock()
	return len(s.connections)
}
