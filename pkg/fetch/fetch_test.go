package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testClient builds a client with a short delay, bypassing the MinDelay
// floor that applies to real construction.
func testClient(delay time.Duration, opts ...Option) *Client {
	c := New(MinDelay, opts...)
	c.delay = delay
	c.switchDelay = hostSwitchFactor * delay
	return c
}

func TestGet(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, "page body")
	}))
	defer srv.Close()

	c := testClient(time.Millisecond, WithoutRobots())
	body, err := c.Get(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "page body" {
		t.Errorf("body = %q", body)
	}
	if !strings.HasPrefix(gotUA, "Mozilla/5.0") {
		t.Errorf("user agent = %q, want a browser agent", gotUA)
	}
	if gotUA != c.UserAgent() {
		t.Error("sent agent differs from the client's fixed agent")
	}
}

func TestGetRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testClient(time.Millisecond, WithoutRobots())
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Error("expected error for 404")
	}
}

func TestGetInvalidURL(t *testing.T) {
	c := testClient(time.Millisecond, WithoutRobots())
	if _, err := c.Get(context.Background(), "not-a-url"); err == nil {
		t.Error("expected error for relative URL")
	}
}

func TestPerHostDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := testClient(80*time.Millisecond, WithoutRobots())
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), srv.URL); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 160*time.Millisecond {
		t.Errorf("three same-host requests took %v, want at least two delay slots", elapsed)
	}
}

func TestHostSwitchPause(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	srvA := httptest.NewServer(handler)
	defer srvA.Close()
	srvB := httptest.NewServer(handler)
	defer srvB.Close()

	c := testClient(40*time.Millisecond, WithoutRobots())
	if _, err := c.Get(context.Background(), srvA.URL); err != nil {
		t.Fatal(err)
	}

	// Crossing to a second host takes the longer inter-source gap, not
	// just the per-host delay.
	start := time.Now()
	if _, err := c.Get(context.Background(), srvB.URL); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 110*time.Millisecond {
		t.Errorf("host switch waited %v, want at least three delay slots", elapsed)
	}
}

func TestDelayWaitRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := testClient(time.Hour, WithoutRobots())
	if _, err := c.Get(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, srv.URL); err == nil {
		t.Error("expected context deadline while waiting for the delay slot")
	}
}

func TestRobotsDisallow(t *testing.T) {
	var robotsFetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		robotsFetches.Add(1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(time.Millisecond)

	if _, err := c.Get(context.Background(), srv.URL+"/public/page"); err != nil {
		t.Fatalf("allowed path rejected: %v", err)
	}
	if _, err := c.Get(context.Background(), srv.URL+"/private/page"); err == nil {
		t.Error("disallowed path should be refused")
	}
	if n := robotsFetches.Load(); n != 1 {
		t.Errorf("robots.txt fetched %d times, want cached after the first", n)
	}
}

func TestRobotsMissingDefaultsToAllowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(time.Millisecond)
	if _, err := c.Get(context.Background(), srv.URL+"/page"); err != nil {
		t.Errorf("missing robots.txt should not block fetching: %v", err)
	}
}
