package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/rpc"
	"strings"
	"sync"
	"testing"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"

	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/events"
	"github.com/drnu/drnu-downloader/server/internal/kv"
	"github.com/drnu/drnu-downloader/server/internal/queue"
)

type idleDownloader struct {
	downloaders.DownloaderBase
	output internal.DownloadOutput
}

func (d *idleDownloader) Start() error { return nil }
func (d *idleDownloader) Stop() error  { return nil }

func (d *idleDownloader) Status() *internal.ProcessSnapshot {
	return &internal.ProcessSnapshot{Id: d.Id, URL: d.URL, Output: d.output, CreatedAt: d.CreatedAt}
}

func (d *idleDownloader) SetOutput(o internal.DownloadOutput) { d.output = o }

func (d *idleDownloader) SetProgress(internal.DownloadProgress) {}

func (d *idleDownloader) UpdateSavedFilePath(string) {}

func (d *idleDownloader) RestoreFromSnapshot(*internal.ProcessSnapshot) error { return nil }

var (
	registerOnce sync.Once
	testDB       *kv.Store
)

func setup(t *testing.T) {
	t.Helper()

	registerOnce.Do(func() {
		mq, err := queue.NewMessageQueue(1, 16)
		if err != nil {
			t.Fatal(err)
		}
		testDB = kv.NewStore(t.TempDir())

		svc := Container(testDB, mq, nil, func(url string) downloaders.Downloader {
			d := &idleDownloader{}
			d.Id = "id-" + url[strings.LastIndex(url, "/")+1:]
			d.URL = url
			d.CreatedAt = time.Now()
			return d
		}, "/srv/drnu")
		if err := rpc.Register(svc); err != nil {
			t.Fatal(err)
		}
	})
}

type rpcResponse struct {
	Id     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  any             `json:"error"`
}

func post(t *testing.T, body string) rpcResponse {
	t.Helper()

	rec := httptest.NewRecorder()
	Post(rec, httptest.NewRequest(http.MethodPost, "/rpc/http", strings.NewReader(body)))

	var res rpcResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return res
}

func TestPostExecAndRunning(t *testing.T) {
	setup(t)

	res := post(t, `{"id":1,"method":"Service.Exec","params":[{"url":"https://www.dr.dk/nu/matador-7","path":"tv"}]}`)
	if res.Error != nil {
		t.Fatalf("exec error: %v", res.Error)
	}
	var id string
	json.Unmarshal(res.Result, &id)
	if id != "id-matador-7" {
		t.Fatalf("id = %q", id)
	}

	res = post(t, `{"id":2,"method":"Service.Running","params":[{}]}`)
	var running []internal.ProcessSnapshot
	if err := json.Unmarshal(res.Result, &running); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range running {
		if r.Id == id && r.Output.Path == "/srv/drnu/tv" {
			found = true
		}
	}
	if !found {
		t.Fatalf("running = %+v", running)
	}
}

func TestPostErrors(t *testing.T) {
	setup(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{"id":1,"method":"Service.Exec","params":[{}]}`},
		{"path outside download dir", `{"id":1,"method":"Service.Exec","params":[{"url":"https://www.dr.dk/nu/matador-8","path":"../../etc"}]}`},
		{"unknown id", `{"id":1,"method":"Service.Kill","params":["nope"]}`},
		{"unknown method", `{"id":1,"method":"Service.Nope","params":[{}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := post(t, tt.body); res.Error == nil {
				t.Fatalf("expected an error, got %s", res.Result)
			}
		})
	}
}

func TestFeedBroadcasts(t *testing.T) {
	bus := evbus.New()
	feed, err := NewFeed(bus)
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	srv := httptest.NewServer(http.HandlerFunc(feed.ServeHTTP))
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// the subscription happens after the upgrade completes
	deadline := time.Now().Add(2 * time.Second)
	for {
		feed.mu.Lock()
		n := len(feed.clients)
		feed.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.TopicProgress, internal.ProcessSnapshot{Id: "a", Title: "Matador"})
	bus.Publish(events.TopicCompleted, internal.ProcessSnapshot{Id: "a"})

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{events.TopicProgress, events.TopicCompleted} {
		var ev Event
		if err := c.ReadJSON(&ev); err != nil {
			t.Fatal(err)
		}
		if ev.Topic != want || ev.Download.Id != "a" {
			t.Fatalf("event = %+v, want topic %s", ev, want)
		}
	}
}
