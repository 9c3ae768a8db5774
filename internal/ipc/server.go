package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"labeldesk/internal/api"
	"labeldesk/internal/daemon"
	"labeldesk/internal/items"
	"labeldesk/internal/logging"
)

const serviceName = "Labeldesk"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Open client
// connections are served until the client hangs up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) ItemList(req ItemListRequest, resp *ItemListResponse) error {
	filter := items.Filter(strings.ToLower(strings.TrimSpace(req.Filter)))
	switch filter {
	case items.FilterAll, items.FilterComplete, items.FilterIncomplete:
	default:
		return fmt.Errorf("unknown item filter %q", req.Filter)
	}
	list, err := s.daemon.ListItems(s.ctx, filter, req.Detailed)
	if err != nil {
		return err
	}
	*resp = list
	return nil
}

func (s *service) AddFile(req AddFileRequest, resp *AddFileResponse) error {
	record, err := s.daemon.AddFile(s.ctx, req.Path)
	if err != nil {
		return err
	}
	resp.Item = api.FromRecord(record, s.daemon.RequiredFields())
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
