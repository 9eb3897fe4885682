package fastview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// The rate at which updates will be sent to the client, so as not to overburden.
	pubResolution  = time.Millisecond * 50
	pingResolution = time.Millisecond * 200
	// By definition, this encompasses the number of pings to tolerate losing before
	// concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// A Client publishes updates to a web client over a websocket and passes back
// the messages the web client sends, e.g. key strokes for a server-held game.
// Updates should be idempotent: when they arrive faster than the publication
// rate only the latest is sent.
type Client[T any, M any] struct {
	updates  <-chan T
	messages chan M
	ws       *websock
}

// NewClient upgrades the request to a websocket. Updates are read from the
// passed chan until it is closed; messages from the peer are decoded from JSON
// into M and delivered on Messages.
func NewClient[T any, M any](
	updates <-chan T,
	w http.ResponseWriter,
	r *http.Request,
) (*Client[T, M], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the peer.
		return nil, err
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client[T, M]{
		updates:  updates,
		messages: make(chan M),
		ws:       NewWebSocket(ws),
	}, nil
}

// Messages returns the decoded messages from the peer. It is closed when the
// peer disconnects or Sync otherwise returns.
func (cli *Client[T, M]) Messages() <-chan M {
	return cli.messages
}

// Sync runs the reader, the ping-pong liveness check, and the publisher. Once
// ctx is done or any of them fails the socket is closed, which unblocks the
// reader, and Sync returns.
// Sync returns nil upon client disconnect or an error if an unexpected error occurred.
func (cli *Client[T, M]) Sync(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		cli.ws.Close()
		return nil
	})

	return group.Wait()
}

// Close sends a close frame and closes the socket.
func (cli *Client[T, M]) Close() {
	cli.ws.Close()
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// Runs the ping-pong for the client liveness check.
// NOTE: This function requires that readMessages is running to ensure the pong handler is called.
func (cli *Client[T, M]) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}

			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client[T, M]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if isError(err) {
					err = fmt.Errorf("ping failed: %T %v", err, err)
				}
			}
			return
		})
}

// readMessages decodes messages from the client and forwards them.
// Errors returned by websocket Read methods are permanent, hence any error
// must trigger full teardown. Closure by the peer is a normal exit.
func (cli *Client[T, M]) readMessages(ctx context.Context) error {
	defer close(cli.messages)

	for {
		var msg M
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) error {
				return ws.ReadJSON(&msg)
			})
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			// The message was consumed; the socket is still usable.
			continue
		}
		if err != nil {
			if isClosure(err) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		select {
		case cli.messages <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// publish writes updates at most once per pubResolution. An update arriving
// sooner is held, replacing any held update, and flushed on the next tick.
func (cli *Client[T, M]) publish(ctx context.Context) error {
	lastSync := time.Time{}
	flush := channerics.NewTicker(ctx.Done(), pubResolution)

	var pending *T
	send := func(update T) error {
		lastSync = time.Now()
		pending = nil
		return cli.ws.Write(
			ctx,
			func(ws *websocket.Conn) (writeErr error) {
				if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
					writeErr = fmt.Errorf("failed to set deadline: %T %w", writeErr, writeErr)
					return
				}

				if writeErr = ws.WriteJSON(update); writeErr != nil {
					if isError(writeErr) {
						writeErr = fmt.Errorf("publish failed: %T %v", writeErr, writeErr)
					}
				}
				return
			})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			// Graceful input channel closure
			if !ok {
				if pending != nil {
					return send(*pending)
				}
				return nil
			}
			if time.Since(lastSync) < pubResolution {
				pending = &update
				break
			}
			if err := send(update); err != nil {
				return err
			}
		case <-flush:
			if pending == nil {
				break
			}
			if err := send(*pending); err != nil {
				return err
			}
		}
	}
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
