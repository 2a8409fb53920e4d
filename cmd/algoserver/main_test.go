package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Bmittal0901/SensexAlgo/internal/metrics"
	"github.com/Bmittal0901/SensexAlgo/pkg/kiteconnect"
)

func testCreds() kiteconnect.Credentials {
	return kiteconnect.Credentials{
		UserID:     "AB1234",
		Password:   "pw",
		TOTPSecret: "JBSWY3DPEHPK3PXP",
		APISecret:  "secret",
	}
}

func loginStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"request_id":"rid-1"}}`))
	})
	mux.HandleFunc("/api/twofa", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{}}`))
	})
	mux.HandleFunc("/connect/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://myapp.example/cb?status=success&request_token=rtok-1", http.StatusFound)
	})
	mux.HandleFunc("/session/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"user_id":"AB1234","user_name":"Test User","access_token":"atok-1"}}`))
	})
	mux.HandleFunc("/user/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"user_name":"Test User"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEstablishSessionSetsHealth(t *testing.T) {
	srv := loginStubServer(t)

	kc := kiteconnect.New(kiteconnect.Config{
		APIKey:      "key",
		APIRoot:     srv.URL,
		LoginRoot:   srv.URL,
		ConnectRoot: srv.URL,
	})
	health := metrics.NewHealthStatus()

	if ok := establishSession(context.Background(), kc, testCreds(), health); !ok {
		t.Fatal("establishSession = false, want true")
	}
	if !health.BrokerSessionOK {
		t.Error("broker session not marked healthy")
	}
	if kc.AccessToken() != "atok-1" {
		t.Errorf("access token = %q", kc.AccessToken())
	}
}

func TestEstablishSessionFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":"error","message":"invalid credentials"}`))
	}))
	defer srv.Close()

	kc := kiteconnect.New(kiteconnect.Config{
		APIKey:      "key",
		APIRoot:     srv.URL,
		LoginRoot:   srv.URL,
		ConnectRoot: srv.URL,
	})
	health := metrics.NewHealthStatus()
	health.SetBrokerSessionOK(true)

	if ok := establishSession(context.Background(), kc, testCreds(), health); ok {
		t.Fatal("establishSession = true, want false")
	}
	if health.BrokerSessionOK {
		t.Error("broker session still marked healthy after failed login")
	}
}
