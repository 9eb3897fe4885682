package fastview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

type update struct {
	Seq int `json:"seq"`
}

type message struct {
	Key string `json:"key"`
}

// echoServer serves one client per connection and hands its messages to the test.
func echoServer(updates <-chan update, messages chan<- message, syncErrs chan<- error) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cli, err := NewClient[update, message](updates, w, r)
		if err != nil {
			syncErrs <- err
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			for msg := range cli.Messages() {
				messages <- msg
			}
			cancel()
		}()
		syncErrs <- cli.Sync(ctx)
	}))
}

func dial(ts *httptest.Server) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	So(err, ShouldBeNil)
	So(conn.SetReadDeadline(time.Now().Add(time.Second*5)), ShouldBeNil)
	return conn
}

func TestClient(t *testing.T) {
	Convey("Given a connected client", t, func() {
		updates := make(chan update)
		messages := make(chan message, 4)
		syncErrs := make(chan error, 1)
		ts := echoServer(updates, messages, syncErrs)
		defer ts.Close()
		conn := dial(ts)
		defer conn.Close()

		Convey("Messages from the peer are decoded, and malformed ones skipped", func() {
			So(conn.WriteMessage(websocket.TextMessage, []byte("not json")), ShouldBeNil)
			So(conn.WriteJSON(message{Key: "w"}), ShouldBeNil)

			select {
			case msg := <-messages:
				So(msg.Key, ShouldEqual, "w")
			case <-time.After(time.Second * 5):
				So("no message received", ShouldBeEmpty)
			}
		})

		Convey("Updates sent in a burst end with the latest", func() {
			for i := 1; i <= 5; i++ {
				updates <- update{Seq: i}
			}

			last := update{}
			for last.Seq != 5 {
				So(conn.ReadJSON(&last), ShouldBeNil)
			}
			So(last.Seq, ShouldEqual, 5)
		})

		Convey("Closing the updates chan ends Sync once the peer leaves", func() {
			close(updates)
			So(conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")), ShouldBeNil)

			select {
			case err := <-syncErrs:
				So(err, ShouldBeNil)
			case <-time.After(time.Second * 5):
				So("sync did not return", ShouldBeEmpty)
			}
		})
	})
}
