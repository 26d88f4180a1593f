package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	xhttp "CandlePull/pkg/http"
)

// transport carries one bridge call at a time.
type transport interface {
	call(ctx context.Context, method string, params, result interface{}) error
	close() error
}

// request and response are the bridge frames. Over HTTP only params and
// result/error are used.
type request struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// remoteError is an error reported by the bridge itself rather than the wire.
type remoteError struct {
	Method  string
	Message string
}

func (e *remoteError) Error() string { return fmt.Sprintf("%s: %s", e.Method, e.Message) }

func decode(method string, resp *response, result interface{}) error {
	if resp.Error != "" {
		return &remoteError{Method: method, Message: resp.Error}
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

type httpTransport struct {
	base   string
	client *xhttp.Client
}

func newHTTPTransport(base string, timeout time.Duration) *httpTransport {
	return &httpTransport{
		base:   strings.TrimRight(base, "/"),
		client: xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (t *httpTransport) call(ctx context.Context, method string, params, result interface{}) error {
	var resp response
	if err := t.client.PostJSON(ctx, t.base+"/"+method, params, &resp); err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return &remoteError{Method: method, Message: se.Body}
		}
		return err
	}
	return decode(method, &resp, result)
}

func (t *httpTransport) close() error { return nil }

type wsTransport struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu     sync.Mutex
	nextID uint64

	done      chan struct{}
	closeOnce sync.Once
}

func dialWS(ctx context.Context, url string, timeout, pingInterval time.Duration) (*wsTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	t := &wsTransport{conn: conn, timeout: timeout, done: make(chan struct{})}
	if pingInterval > 0 {
		go t.pingLoop(pingInterval)
	}
	return t, nil
}

func (t *wsTransport) pingLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			_ = t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.timeout))
		}
	}
}

func (t *wsTransport) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(t.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (t *wsTransport) call(ctx context.Context, method string, params, result interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// unblock a pending read when the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = t.conn.SetReadDeadline(time.Now()) })
	defer stop()

	t.nextID++
	id := t.nextID
	deadline := t.deadline(ctx)

	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteJSON(request{ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}

	_ = t.conn.SetReadDeadline(deadline)
	for {
		var resp response
		if err := t.conn.ReadJSON(&resp); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read %s: %w", method, err)
		}
		if resp.ID != id {
			// late answer to an abandoned call
			continue
		}
		return decode(method, &resp, result)
	}
}

func (t *wsTransport) close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}
