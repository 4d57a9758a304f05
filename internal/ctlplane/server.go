// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/packetware/ghostwire/internal/logging"
)

// DefaultSocketPath is where the management socket binds by default.
const DefaultSocketPath = "/tmp/ghostwire.sock"

const maxRequestBytes = 1024

// Server is the management socket (C9): a JSON-over-Unix-domain-socket
// server accepting exactly one request per connection, dispatching to the
// firewall's OverallState.
type Server struct {
	SocketPath string
	State      *OverallState
	Attacher   Attacher
	Logger     *logging.Logger
}

// NewServer builds a Server bound to socketPath (DefaultSocketPath if
// empty), driving state via attacher when handling ENABLE requests.
func NewServer(socketPath string, state *OverallState, attacher Attacher, logger *logging.Logger) *Server {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{SocketPath: socketPath, State: state, Attacher: attacher, Logger: logger}
}

// ListenAndServe binds the socket (removing any stale file left behind by
// a prior run) and accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ctlplane: remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("ctlplane: bind %s: %w", s.SocketPath, err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.Logger.Info("management socket listening", "path", s.SocketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.Logger.Error("accept failed", "error", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn reads a single request off conn, dispatches it, writes the
// response, and closes the connection. One request per connection mirrors
// the CLI's one-shot request/response socket client.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	requestID := uuid.NewString()
	logger := s.Logger.With("request_id", requestID)

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error("read failed", "error", err)
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(buf[:n], &msg); err != nil {
		s.respond(logger, conn, ServerMessage{RequestSuccess: false, Message: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	logger.Debug("request received", "req_type", msg.ReqType)
	resp := s.dispatch(logger, msg)
	s.respond(logger, conn, resp)
}

func (s *Server) respond(logger *logging.Logger, conn net.Conn, resp ServerMessage) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("marshal response failed", "error", err)
		return
	}
	if _, err := conn.Write(data); err != nil {
		logger.Error("write response failed", "error", err)
	}
}

func (s *Server) dispatch(logger *logging.Logger, msg ClientMessage) ServerMessage {
	result, err := s.dispatchFallible(msg)
	if err != nil {
		return ServerMessage{RequestSuccess: false, Message: err.Error()}
	}
	return ServerMessage{RequestSuccess: true, Message: result}
}

func (s *Server) dispatchFallible(msg ClientMessage) (string, error) {
	switch msg.ReqType {
	case ReqStatus:
		return s.State.Summary(), nil

	case ReqRules:
		if msg.Rules == nil {
			return "", fmt.Errorf("request to change rules didn't include rules")
		}
		enabled, _ := s.State.Snapshot()
		if !enabled {
			if msg.Interface == nil {
				return "", fmt.Errorf("firewall is disabled and rules message didn't include the interface")
			}
			if err := s.State.Enable(*msg.Interface, nil, s.Attacher); err != nil {
				return "", err
			}
		}
		if err := s.State.ReplaceRules(msg.Rules); err != nil {
			return "", err
		}
		return "rules updated", nil

	case ReqEnable:
		if msg.Interface == nil {
			return "", fmt.Errorf("enable message didn't include the interface")
		}
		// The firewall always comes up with an empty rule set; a RULES
		// request loads the actual rules once enabled.
		if err := s.State.Enable(*msg.Interface, nil, s.Attacher); err != nil {
			return "", err
		}
		return "firewall enabled", nil

	case ReqDisable:
		if err := s.State.Disable(); err != nil {
			return "", err
		}
		return "firewall disabled", nil

	default:
		return "", fmt.Errorf("unknown request type %q", msg.ReqType)
	}
}
