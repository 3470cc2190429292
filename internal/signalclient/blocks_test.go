package signalclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/Huddle/internal/call"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
)

func blockAPI(t *testing.T, blocked map[domain.UserID]bool) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/messages/blocked/:id", func(c *gin.Context) {
		if c.GetHeader("Cookie") != "HuddleSessions=ok" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"blocked": blocked[domain.UserID(c.Param("id"))]})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func sessionHeader() http.Header {
	h := http.Header{}
	h.Set("Cookie", "HuddleSessions=ok")
	return h
}

func TestBlockChecker(t *testing.T) {
	api := blockAPI(t, map[domain.UserID]bool{"mallory": true})
	ctx := context.Background()

	b := NewBlockChecker(api+"/", sessionHeader(), nil)
	if blocked, err := b.IsBlocked(ctx, "alice", "mallory"); err != nil || !blocked {
		t.Errorf("mallory: %v %v", blocked, err)
	}
	if blocked, err := b.IsBlocked(ctx, "alice", "bob"); err != nil || blocked {
		t.Errorf("bob: %v %v", blocked, err)
	}

	anon := NewBlockChecker(api, nil, nil)
	if _, err := anon.IsBlocked(ctx, "alice", "bob"); err == nil {
		t.Error("expected an error without a session")
	}
}

type countingCapturer struct{ n int }

func (c *countingCapturer) Capture(context.Context) (call.LocalMedia, error) {
	c.n++
	return media{}, nil
}

func TestBlockChecker_StopsCallBeforeCapture(t *testing.T) {
	api := blockAPI(t, map[domain.UserID]bool{"mallory": true})
	client, err := NewClient("ws://127.0.0.1:1/api/ws/signal", "alice", Handler{}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	capt := &countingCapturer{}
	m := call.NewMachine(call.Options{
		Self:     domain.UserInfo{ID: "alice"},
		Capturer: capt,
		Peers:    peers{},
		Signaler: client,
		Blocks:   NewBlockChecker(api, sessionHeader(), nil),
	})

	if err := m.StartCall(context.Background(), "mallory"); !errors.Is(err, call.ErrBlocked) {
		t.Fatalf("start call = %v, want ErrBlocked", err)
	}
	if capt.n != 0 {
		t.Errorf("media captured %d times for a blocked peer", capt.n)
	}
	if st := m.Status(); st.State != call.Idle {
		t.Errorf("state = %s", st.State)
	}
}

func TestAPIBase(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:8080/api/ws/signal":        "http://localhost:8080/api",
		"wss://chat.example.com/api/ws/signal?x=1": "https://chat.example.com/api",
		"http://localhost:8080/api/ws/signal/":     "http://localhost:8080/api",
	}
	for in, want := range cases {
		got, err := APIBase(in)
		if err != nil || got != want {
			t.Errorf("APIBase(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := APIBase("ftp://host/api/ws/signal"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
