package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingTarget struct {
	mu       sync.Mutex
	requests []recordedRequest
	failures int
}

type recordedRequest struct {
	Auth     string
	Envelope Envelope
}

func (rt *recordingTarget) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt.mu.Lock()
		defer rt.mu.Unlock()

		var env Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("failed to decode webhook body: %v", err)
		}
		rt.requests = append(rt.requests, recordedRequest{
			Auth:     r.Header.Get("Authorization"),
			Envelope: env,
		})
		if len(rt.requests) <= rt.failures {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (rt *recordingTarget) recorded() []recordedRequest {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]recordedRequest(nil), rt.requests...)
}

func testDeliverer() (*Deliverer, *[]time.Duration) {
	var slept []time.Duration
	d := NewDeliverer()
	d.sleep = func(dur time.Duration) { slept = append(slept, dur) }
	return d, &slept
}

func testEnvelope() *Envelope {
	return NewEnvelope("instance-1",
		MessagePayload{ID: "m1", From: "5511999999999@c.us", Body: "hello", ChatID: "5511999999999@c.us"},
		ContactPayload{Name: "Alice", Number: "5511999999999"})
}

func TestDeliverFirstAttemptSuccess(t *testing.T) {
	target := &recordingTarget{}
	server := httptest.NewServer(target.handler(t))
	defer server.Close()

	d, slept := testDeliverer()
	if err := d.Deliver(context.Background(), server.URL, "secret-token", testEnvelope()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	reqs := target.recorded()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Auth != "Bearer secret-token" {
		t.Errorf("Expected bearer token header, got %q", reqs[0].Auth)
	}
	if reqs[0].Envelope.Event != EventMessageReceived {
		t.Errorf("Expected %s event, got %s", EventMessageReceived, reqs[0].Envelope.Event)
	}
	if reqs[0].Envelope.Message.Body != "hello" {
		t.Errorf("Expected message body to round-trip, got %q", reqs[0].Envelope.Message.Body)
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no backoff on immediate success, slept %v", *slept)
	}
}

func TestDeliverRetriesWithLinearBackoff(t *testing.T) {
	target := &recordingTarget{failures: 2}
	server := httptest.NewServer(target.handler(t))
	defer server.Close()

	d, slept := testDeliverer()
	if err := d.Deliver(context.Background(), server.URL, "tok", testEnvelope()); err != nil {
		t.Fatalf("Expected third attempt to succeed, got %v", err)
	}

	if got := len(target.recorded()); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("Expected %d backoff sleeps, got %v", len(want), *slept)
	}
	for i, dur := range want {
		if (*slept)[i] != dur {
			t.Errorf("Expected sleep %d to be %v, got %v", i, dur, (*slept)[i])
		}
	}
}

func TestDeliverGivesUpAfterThreeAttempts(t *testing.T) {
	target := &recordingTarget{failures: 10}
	server := httptest.NewServer(target.handler(t))
	defer server.Close()

	d, slept := testDeliverer()
	err := d.Deliver(context.Background(), server.URL, "tok", testEnvelope())
	if err == nil {
		t.Fatal("Expected delivery to fail after exhausting attempts")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Expected attempt budget in error, got %v", err)
	}
	if got := len(target.recorded()); got != 3 {
		t.Errorf("Expected exactly 3 requests, got %d", got)
	}
	if len(*slept) != 2 {
		t.Errorf("Expected 2 backoff sleeps, got %v", *slept)
	}
}

func TestDeliverUnreachableTarget(t *testing.T) {
	d, _ := testDeliverer()
	err := d.Deliver(context.Background(), "http://127.0.0.1:1/webhook", "tok", testEnvelope())
	if err == nil {
		t.Fatal("Expected delivery to an unreachable target to fail")
	}
}
