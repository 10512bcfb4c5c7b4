package opensky

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yegors/skytrail/pkg/logger"
)

type fakeOpenSky struct {
	tokenCalls atomic.Int32
	statesCode atomic.Int32
	lastQuery  string
	mu         sync.Mutex
}

func (f *fakeOpenSky) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("Bad form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_id") != "id" || r.Form.Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"access_token":"tok-1","expires_in":1800}`))
	})
	mux.HandleFunc("/states/all", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if code := f.statesCode.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		w.Write([]byte(`{"time":1700000000,"states":[
			["abc123","JAL1    ","Japan",1700000000,1700000000,139.7,35.5,10000,false,250,87.5,0,null,10100,"1200",false,0],
			["def456",null,"Atlantis",1700000000,1700000000,null,null,null,true,0,null,0,null,null,null,false,0]
		]}`))
	})
	mux.HandleFunc("/flights/aircraft", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastQuery = r.URL.RawQuery
		f.mu.Unlock()
		w.Write([]byte(`[{"icao24":"abc123","estDepartureAirport":"RJTT","estArrivalAirport":null}]`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeOpenSky, id, secret string) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     id,
		ClientSecret: secret,
		Timeout:      2 * time.Second,
	}, logger.NewNop())
}

func TestToken(t *testing.T) {
	t.Run("Cached until expiry margin", func(t *testing.T) {
		f := &fakeOpenSky{}
		c := newTestClient(t, f, "id", "secret")
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return now }

		for i := 0; i < 3; i++ {
			tok, err := c.Token(context.Background())
			if err != nil || tok != "tok-1" {
				t.Fatalf("Token() = %q, %v", tok, err)
			}
		}
		if f.tokenCalls.Load() != 1 {
			t.Errorf("Expected 1 token request, got %d", f.tokenCalls.Load())
		}

		// 1800s lifetime minus the 60s margin
		now = now.Add(1739 * time.Second)
		c.Token(context.Background())
		if f.tokenCalls.Load() != 1 {
			t.Errorf("Token refreshed too early")
		}
		now = now.Add(2 * time.Second)
		c.Token(context.Background())
		if f.tokenCalls.Load() != 2 {
			t.Errorf("Expected refresh after expiry, got %d requests", f.tokenCalls.Load())
		}
	})

	t.Run("No credentials", func(t *testing.T) {
		c := newTestClient(t, &fakeOpenSky{}, "", "")
		if _, err := c.Token(context.Background()); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("Expected ErrNoCredentials, got: %v", err)
		}
	})

	t.Run("Rejected credentials", func(t *testing.T) {
		c := newTestClient(t, &fakeOpenSky{}, "id", "wrong")
		_, err := c.Token(context.Background())
		if !IsStatus(err) {
			t.Errorf("Expected status error, got: %v", err)
		}
	})
}

func TestTokenSurvivesCallerCancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		w.Write([]byte(`{"access_token":"tok-1","expires_in":1800}`))
	}))
	defer srv.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	c := NewClient(Config{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	}, logger.NewNop())

	ctx1, cancel1 := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Token(ctx1)
		firstErr <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Token request never reached the server")
	}

	type result struct {
		token string
		err   error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := c.Token(context.Background())
		second <- result{tok, err}
	}()

	cancel1()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected cancelled caller to see context.Canceled, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancelled caller did not return")
	}

	// Give the second caller time to join the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case res := <-second:
		if res.err != nil || res.token != "tok-1" {
			t.Errorf("Live caller got %q, %v", res.token, res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Live caller did not return")
	}
}

func TestStates(t *testing.T) {
	f := &fakeOpenSky{}
	c := newTestClient(t, f, "id", "secret")
	tok, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	states, err := c.States(context.Background(), tok)
	if err != nil {
		t.Fatalf("States failed: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("Expected 2 states, got %d", len(states))
	}

	s := states[0]
	if s.ICAO24 != "abc123" || s.Callsign == nil || *s.Callsign != "JAL1    " || s.OriginCountry != "Japan" {
		t.Errorf("Unexpected identity fields: %+v", s)
	}
	if s.Latitude == nil || *s.Latitude != 35.5 || s.Longitude == nil || *s.Longitude != 139.7 {
		t.Errorf("Unexpected position: %+v", s)
	}
	if s.TrueTrack == nil || *s.TrueTrack != 87.5 {
		t.Errorf("Unexpected track: %v", s.TrueTrack)
	}

	s = states[1]
	if s.Callsign != nil || s.Latitude != nil || s.Longitude != nil || s.TrueTrack != nil {
		t.Errorf("Expected nulls to decode as nil: %+v", s)
	}

	t.Run("Rate limited", func(t *testing.T) {
		f.statesCode.Store(http.StatusTooManyRequests)
		defer f.statesCode.Store(0)
		_, err := c.States(context.Background(), tok)
		if !IsRateLimited(err) {
			t.Errorf("Expected rate limited error, got: %v", err)
		}
	})
}

func TestFlightsByAircraft(t *testing.T) {
	f := &fakeOpenSky{}
	c := newTestClient(t, f, "id", "secret")

	end := time.Unix(1700086400, 0)
	begin := end.Add(-24 * time.Hour)
	flights, err := c.FlightsByAircraft(context.Background(), "tok-1", "abc123", begin, end)
	if err != nil {
		t.Fatalf("FlightsByAircraft failed: %v", err)
	}
	if len(flights) != 1 || flights[0].EstDepartureAirport == nil || *flights[0].EstDepartureAirport != "RJTT" || flights[0].EstArrivalAirport != nil {
		t.Errorf("Unexpected flights: %+v", flights)
	}

	f.mu.Lock()
	q := f.lastQuery
	f.mu.Unlock()
	if q != "begin=1700000000&end=1700086400&icao24=abc123" {
		t.Errorf("Unexpected query: %s", q)
	}
}
