package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Khan/genqlient/graphql"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/fragmede/essay/internal/auth"
	"github.com/fragmede/essay/internal/feed"
)

const commentNotificationOp = "CommentNotification"

// WSSubscriber streams new issue comments over a graphql-transport-ws
// websocket. Each Subscribe opens its own connection.
type WSSubscriber struct {
	endpoint string
	tokens   TokenSource
	dialer   *websocket.Dialer
	log      zerolog.Logger
}

// NewWSSubscriber creates a subscriber for a ws:// or wss:// endpoint.
func NewWSSubscriber(endpoint string, tokens TokenSource, log zerolog.Logger) *WSSubscriber {
	return &WSSubscriber{
		endpoint: endpoint,
		tokens:   tokens,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      log,
	}
}

// connDialer adapts gorilla's dialer to graphql.Dialer and keeps the
// connection it opened so the subscription can close it.
type connDialer struct {
	d    *websocket.Dialer
	conn *websocket.Conn
}

func (c *connDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (graphql.WSConn, error) {
	conn, resp, err := c.d.DialContext(ctx, urlStr, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: err.Error()}
		}
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// wsPayload is the payload of one "next" or "error" message.
type wsPayload struct {
	Data   json.RawMessage `json:"data"`
	Errors gqlerror.List   `json:"errors"`
}

func decodePayload(raw json.RawMessage) (wsPayload, error) {
	var p wsPayload
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &p.Errors)
		return p, err
	}
	err := json.Unmarshal(raw, &p)
	return p, err
}

type commentEventData struct {
	IssueCommentEvent *struct {
		Comment *Comment `json:"comment"`
	} `json:"issueCommentEvent"`
}

// Subscribe opens the CommentNotification subscription. Handlers run on a
// goroutine owned by the returned subscription and stop once Close returns.
func (s *WSSubscriber) Subscribe(ctx context.Context, vars feed.Variables, h feed.Handlers[Comment]) (feed.Subscription, error) {
	header := http.Header{}
	if s.tokens != nil {
		if token := s.tokens.CurrentAccessToken(); token != "" {
			header.Set("Authorization", "bearer "+token)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	dialer := &connDialer{d: s.dialer}
	client := graphql.NewClientUsingWebSocket(s.endpoint, dialer, graphql.WithWebsocketHeader(header))
	errChan, err := client.Start(ctx)
	if err != nil {
		cancel()
		return nil, s.transportError(err)
	}

	// genqlient closes completed when the server completes the operation.
	// Payloads go through events, which is never closed.
	completed := make(chan struct{})
	events := make(chan wsPayload, 16)
	forward := func(_ interface{}, raw json.RawMessage) error {
		p, err := decodePayload(raw)
		if err != nil {
			return err
		}
		select {
		case events <- p:
		case <-ctx.Done():
		}
		return nil
	}

	id, err := client.Subscribe(&graphql.Request{
		OpName:    commentNotificationOp,
		Query:     commentNotificationSubscription,
		Variables: compact(vars),
	}, completed, forward)
	if err != nil {
		cancel()
		go func() { <-errChan }()
		closeConn(dialer.conn)
		return nil, s.transportError(err)
	}
	s.log.Debug().Str("id", id).Msg("subscribed to comment notifications")

	sub := &wsSubscription{conn: dialer.conn, cancel: cancel, done: make(chan struct{})}
	context.AfterFunc(ctx, sub.shutdown)
	go sub.run(ctx, events, completed, errChan, h, s.log)
	return sub, nil
}

func (s *WSSubscriber) transportError(err error) error {
	te := &TransportError{Op: commentNotificationOp, Err: err}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		te.Errors = missingAuthErrors(auth.ServiceGitHub)
	}
	return te
}

type wsSubscription struct {
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	connOnce sync.Once
	closeErr error
}

// run delivers events until ctx is cancelled. genqlient's reader reports
// exactly one error on errChan before it stops, and blocks until that
// error is received, so run waits for it before returning.
func (w *wsSubscription) run(ctx context.Context, events <-chan wsPayload, completed <-chan struct{}, errChan <-chan error, h feed.Handlers[Comment], log zerolog.Logger) {
	defer close(w.done)
	reading := true
	for {
		select {
		case <-ctx.Done():
			if reading {
				<-errChan
			}
			return
		case p := <-events:
			if ctx.Err() != nil {
				continue
			}
			if len(p.Errors) > 0 {
				h.OnError(&TransportError{Op: commentNotificationOp, Errors: p.Errors})
				continue
			}
			var data commentEventData
			if err := json.Unmarshal(p.Data, &data); err != nil {
				h.OnError(&TransportError{Op: commentNotificationOp, Err: fmt.Errorf("decoding event: %w", err)})
				continue
			}
			if data.IssueCommentEvent == nil || data.IssueCommentEvent.Comment == nil {
				log.Debug().Msg("comment event without comment")
				continue
			}
			h.OnNext(*data.IssueCommentEvent.Comment)
		case <-completed:
			completed = nil
			if ctx.Err() == nil {
				h.OnError(&TransportError{Op: commentNotificationOp, Err: errServerCompleted})
			}
		case err := <-errChan:
			reading = false
			errChan = nil
			if err != nil && ctx.Err() == nil {
				h.OnError(&TransportError{Op: commentNotificationOp, Err: err})
			}
		}
	}
}

var errServerCompleted = errors.New("server completed the subscription")

// shutdown closes the websocket once, when the subscription's context ends.
func (w *wsSubscription) shutdown() {
	w.connOnce.Do(func() { w.closeErr = closeConn(w.conn) })
}

// Close sends a normal closure, closes the websocket and waits for the
// handler goroutine to stop. It is safe to call more than once.
func (w *wsSubscription) Close() error {
	w.cancel()
	w.shutdown()
	<-w.done
	return w.closeErr
}

func closeConn(conn *websocket.Conn) error {
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return conn.Close()
}
