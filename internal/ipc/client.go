package ipc

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const defaultCallTimeout = 10 * time.Second

// Client provides RPC access to a running quill process.
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

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}
	call := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		return call.Error
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// Status retrieves the process status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check runs a check and waits for its result. The call deadline is
// extended past the server-side wait so stale reports are not lost.
func (c *Client) Check(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	wait := defaultCheckTimeout
	if req.TimeoutMs > 0 {
		wait = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, wait+5*time.Second)
	defer cancel()
	var resp CheckResponse
	if err := c.call(ctx, "Check", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Edit reports an edit for background checking.
func (c *Client) Edit(ctx context.Context, text, caller string) (*EditResponse, error) {
	var resp EditResponse
	if err := c.call(ctx, "Edit", EditRequest{Text: text, Caller: caller}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Tag returns per-sentence token analysis.
func (c *Client) Tag(ctx context.Context, text string) (*TagResponse, error) {
	var resp TagResponse
	if err := c.call(ctx, "Tag", TagRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetLanguage changes the active language.
func (c *Client) SetLanguage(ctx context.Context, lang string) (*SetLanguageResponse, error) {
	var resp SetLanguageResponse
	if err := c.call(ctx, "SetLanguage", SetLanguageRequest{Language: lang}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetBackground toggles checking on edit.
func (c *Client) SetBackground(ctx context.Context, enabled bool) (*ToggleResponse, error) {
	var resp ToggleResponse
	if err := c.call(ctx, "SetBackground", ToggleRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetAutoDetect toggles language detection.
func (c *Client) SetAutoDetect(ctx context.Context, enabled bool) (*ToggleResponse, error) {
	var resp ToggleResponse
	if err := c.call(ctx, "SetAutoDetect", ToggleRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ServerStart starts the embedded server; nil port uses the configured one.
func (c *Client) ServerStart(ctx context.Context, port *int) (*ServerResponse, error) {
	var resp ServerResponse
	if err := c.call(ctx, "ServerStart", ServerStartRequest{Port: port}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ServerStop stops the embedded server.
func (c *Client) ServerStop(ctx context.Context) (*ServerResponse, error) {
	var resp ServerResponse
	if err := c.call(ctx, "ServerStop", ServerStopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ServerEnable flips the persisted "run server" setting and applies it.
func (c *Client) ServerEnable(ctx context.Context, enabled bool) (*ServerResponse, error) {
	var resp ServerResponse
	if err := c.call(ctx, "ServerEnable", ToggleRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists (and optionally clears) stored checks.
func (c *Client) History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call(ctx, "History", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Quit asks the process to shut down.
func (c *Client) Quit(ctx context.Context) (*QuitResponse, error) {
	var resp QuitResponse
	if err := c.call(ctx, "Quit", QuitRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
