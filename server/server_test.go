package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "gridchase/grid_world"
	"gridchase/reinforcement"
	"gridchase/storage"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func getRoutes(url string) []storage.RouteRecord {
	resp, err := http.Get(url + "/routes")
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	records := []storage.RouteRecord{}
	So(json.NewDecoder(resp.Body).Decode(&records), ShouldBeNil)
	return records
}

func TestServer(t *testing.T) {
	Convey("Given a server", t, func() {
		grid := Config{Width: 128, Height: 128, CellDim: 16, Title: "Chase"}

		Convey("Invalid grids are rejected", func() {
			_, err := NewServer(":0", Options{Grid: Config{Width: 100, Height: 100}}, nil, log.New(io.Discard))
			So(err, ShouldNotBeNil)
		})

		Convey("The index page shows the grid", func() {
			server, err := NewServer(":0", Options{Grid: grid}, nil, log.New(io.Discard))
			So(err, ShouldBeNil)
			ts := httptest.NewServer(server.Handler())
			defer ts.Close()

			resp, err := http.Get(ts.URL + "/")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, "<title>Chase</title>")
			So(string(body), ShouldContainSubstring, `width="128"`)

			So(getRoutes(ts.URL), ShouldBeEmpty)
		})

		Convey("A websocket session streams frames and records its routes", func() {
			store := storage.NewMemoryStore()
			So(store.Init(context.Background()), ShouldBeNil)

			opts := Options{
				Grid: grid,
				NewSource: func(sim *Simulator) ActionSource {
					return reinforcement.OraclePolicy(sim.CellDim())
				},
				Tick: time.Millisecond * 5,
			}
			server, err := NewServer(":0", opts, store, log.New(io.Discard))
			So(err, ShouldBeNil)
			ts := httptest.NewServer(server.Handler())
			defer ts.Close()

			wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			frame := Frame{}
			So(conn.SetReadDeadline(time.Now().Add(time.Second*5)), ShouldBeNil)
			So(conn.ReadJSON(&frame), ShouldBeNil)
			So(frame.Width, ShouldEqual, 128)
			So(frame.Title, ShouldEqual, "Chase")

			// Let a few episodes play, then quit.
			time.Sleep(time.Millisecond * 300)
			So(conn.WriteJSON(KeyEvent{Key: ESC}), ShouldBeNil)

			var records []storage.RouteRecord
			for deadline := time.Now().Add(time.Second * 5); time.Now().Before(deadline); {
				if records = getRoutes(ts.URL); len(records) > 0 {
					break
				}
				time.Sleep(time.Millisecond * 20)
			}
			So(len(records), ShouldBeGreaterThan, 0)

			ids, err := store.ListRuns(context.Background())
			So(err, ShouldBeNil)
			So(len(ids), ShouldEqual, 1)
			run, found, err := store.GetRun(context.Background(), ids[0])
			So(err, ShouldBeNil)
			So(found, ShouldBeTrue)
			So(len(run.Ledger), ShouldEqual, len(records))
		})
	})
}
