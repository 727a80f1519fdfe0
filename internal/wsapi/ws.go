package wsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hostbridge/sysbridge/internal/bus"
	"github.com/hostbridge/sysbridge/internal/events"
)

// wsMailboxSize is the outgoing mailbox depth shared by a connection's
// send/recv tasks.
const wsMailboxSize = 32

// inboundMessage is the client->server {op, data} envelope.
type inboundMessage struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type subscribeData struct {
	Topics []string `json:"topics"`
}

type mediaData struct {
	Action string `json:"action"`
	Value  *int   `json:"value,omitempty"`
}

type processKillData struct {
	PID  *uint32 `json:"pid,omitempty"`
	Name *string `json:"name,omitempty"`
}

type processFocusData struct {
	PID uint32 `json:"pid"`
}

type processLaunchData struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// errorFrame is the outbound {type:"error", data:{code, message}} frame.
type errorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	connID := newConnID()
	s.wsActive.Add(1)
	s.wsTotal.Add(1)
	defer s.wsActive.Add(-1)
	logger = logger.With("ws_id", connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	f := newFilter(nil)
	mailbox := make(chan []byte, wsMailboxSize)

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			s.clearSubscription(f)
		})
	}
	defer cleanup()

	sub := s.deps.Bus.Subscribe()
	defer sub.Unsubscribe()

	recvDone := make(chan struct{})
	go s.wsRecv(ctx, cancel, conn, f, mailbox, logger, recvDone)

	s.wsSend(ctx, cancel, conn, sub, f, mailbox, logger)
	<-recvDone
}

// wsSend merges bus events and mailbox frames, projects bus events
// through the connection's filter, and writes both to the socket. It
// terminates on write error, context cancellation, or bus closure.
func (s *Server) wsSend(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *bus.Subscription, f *filter, mailbox <-chan []byte, logger *slog.Logger) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			projected, keep := f.project(e)
			if !keep {
				continue
			}
			if !s.wsWrite(ctx, conn, projected.ToWire(), logger) {
				return
			}
		case raw, ok := <-mailbox:
			if !ok {
				return
			}
			if !s.wsWriteRaw(ctx, conn, raw, logger) {
				return
			}
		}
	}
}

func (s *Server) wsWrite(ctx context.Context, conn *websocket.Conn, payload events.WireMessage, logger *slog.Logger) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal outbound ws message", "err", err)
		return true
	}
	return s.wsWriteRaw(ctx, conn, data, logger)
}

func (s *Server) wsWriteRaw(ctx context.Context, conn *websocket.Conn, data []byte, logger *slog.Logger) bool {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			logger.Warn("websocket write failed", "err", err)
		}
		return false
	}
	return true
}

// wsRecv reads frames and dispatches subscribe/control ops. It cancels
// ctx (stopping the send task) on any read error or normal close, so a
// single cancellation point tears down both halves.
func (s *Server) wsRecv(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, f *filter, mailbox chan<- []byte, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	defer cancel()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Debug("websocket read ended", "err", err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		s.handleInbound(ctx, data, f, mailbox, logger)
	}
}

func (s *Server) handleInbound(ctx context.Context, data []byte, f *filter, mailbox chan<- []byte, logger *slog.Logger) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		postMailboxError(mailbox, "PARSE_ERROR", "invalid message envelope")
		return
	}

	switch msg.Op {
	case "subscribe":
		var sd subscribeData
		if err := json.Unmarshal(msg.Data, &sd); err != nil {
			postMailboxError(mailbox, "PARSE_ERROR", "invalid subscribe payload")
			return
		}
		s.applySubscription(f, sd.Topics)
	case "media":
		s.handleWSMedia(ctx, msg.Data, mailbox, logger)
	case "process_kill":
		s.handleWSProcessKill(ctx, msg.Data, mailbox, logger)
	case "process_focus":
		s.handleWSProcessFocus(ctx, msg.Data, mailbox, logger)
	case "process_launch":
		s.handleWSProcessLaunch(ctx, msg.Data, mailbox, logger)
	default:
		postMailboxError(mailbox, "PARSE_ERROR", "unknown op "+msg.Op)
	}
}

func (s *Server) handleWSMedia(ctx context.Context, raw json.RawMessage, mailbox chan<- []byte, logger *slog.Logger) {
	var d mediaData
	if err := json.Unmarshal(raw, &d); err != nil {
		postMailboxError(mailbox, "PARSE_ERROR", "invalid media payload")
		return
	}
	if !s.deps.Config.Get().Features.EnableMedia {
		s.publishMediaFeedback(false, d.Action, strPtr("media is disabled"))
		return
	}
	value := 0
	if d.Value != nil {
		value = *d.Value
	}
	err := s.deps.Media.Control(ctx, d.Action, value)
	s.publishMediaFeedback(err == nil, d.Action, errMsg(err))
	if err != nil {
		logger.Debug("ws media control failed", "action", d.Action, "err", err)
	}
}

func (s *Server) handleWSProcessKill(ctx context.Context, raw json.RawMessage, mailbox chan<- []byte, logger *slog.Logger) {
	var d processKillData
	if err := json.Unmarshal(raw, &d); err != nil {
		postMailboxError(mailbox, "PARSE_ERROR", "invalid process_kill payload")
		return
	}
	if !s.deps.Config.Get().Features.EnableProcesses {
		s.publishProcessFeedback(false, "kill", d.PID, d.Name, strPtr("processes are disabled"))
		return
	}
	switch {
	case d.PID != nil:
		err := s.deps.Proc.KillByPID(ctx, *d.PID)
		s.publishProcessFeedback(err == nil, "kill", d.PID, d.Name, errMsg(err))
		if err != nil {
			logger.Debug("ws process kill failed", "pid", *d.PID, "err", err)
		}
	case d.Name != nil:
		_, err := s.deps.Proc.KillByName(ctx, *d.Name)
		s.publishProcessFeedback(err == nil, "kill", d.PID, d.Name, errMsg(err))
		if err != nil {
			logger.Debug("ws process kill failed", "name", *d.Name, "err", err)
		}
	default:
		postMailboxError(mailbox, "PARSE_ERROR", "pid or name required")
	}
}

func (s *Server) handleWSProcessFocus(ctx context.Context, raw json.RawMessage, mailbox chan<- []byte, logger *slog.Logger) {
	var d processFocusData
	if err := json.Unmarshal(raw, &d); err != nil {
		postMailboxError(mailbox, "PARSE_ERROR", "invalid process_focus payload")
		return
	}
	if !s.deps.Config.Get().Features.EnableProcesses {
		s.publishProcessFeedback(false, "focus", &d.PID, nil, strPtr("processes are disabled"))
		return
	}
	err := s.deps.Proc.Focus(ctx, d.PID)
	s.publishProcessFeedback(err == nil, "focus", &d.PID, nil, errMsg(err))
	if err != nil {
		logger.Debug("ws process focus failed", "pid", d.PID, "err", err)
	}
}

func (s *Server) handleWSProcessLaunch(ctx context.Context, raw json.RawMessage, mailbox chan<- []byte, logger *slog.Logger) {
	var d processLaunchData
	if err := json.Unmarshal(raw, &d); err != nil {
		postMailboxError(mailbox, "PARSE_ERROR", "invalid process_launch payload")
		return
	}
	if !s.deps.Config.Get().Features.EnableProcesses {
		s.publishProcessFeedback(false, "launch", nil, &d.Path, strPtr("processes are disabled"))
		return
	}
	_, err := s.deps.Proc.Launch(ctx, d.Path, d.Args)
	s.publishProcessFeedback(err == nil, "launch", nil, &d.Path, errMsg(err))
	if err != nil {
		logger.Debug("ws process launch failed", "path", d.Path, "err", err)
	}
}

func postMailboxError(mailbox chan<- []byte, code, message string) {
	data, err := json.Marshal(events.WireMessage{Type: "error", Data: errorFrame{Code: code, Message: message}})
	if err != nil {
		return
	}
	select {
	case mailbox <- data:
	default:
	}
}

func strPtr(s string) *string { return &s }
