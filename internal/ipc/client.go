package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start dispatching.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop dispatching.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// ItemList lists stored items.
func (c *Client) ItemList(req ItemListRequest) (*ItemListResponse, error) {
	return call[ItemListResponse](c, "ItemList", req)
}

// AddFile stores an image from disk and offers it to workers.
func (c *Client) AddFile(path string) (*AddFileResponse, error) {
	return call[AddFileResponse](c, "AddFile", AddFileRequest{Path: path})
}

// TestNotification sends a test notification through the daemon's notifier.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
