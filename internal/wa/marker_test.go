package wa

import (
	"testing"
	"time"
)

func TestMarkerConsumeIsSingleUse(t *testing.T) {
	m := NewSendMarkers()

	m.Mark("chat@c.us")

	if !m.Active("chat@c.us") {
		t.Fatal("Expected marker to be active after Mark")
	}
	if !m.Consume("chat@c.us") {
		t.Fatal("Expected first Consume to succeed")
	}
	if m.Consume("chat@c.us") {
		t.Error("Expected second Consume to fail, markers are single-use")
	}
}

func TestMarkerUnknownChat(t *testing.T) {
	m := NewSendMarkers()

	if m.Consume("nobody@c.us") {
		t.Error("Expected Consume of unmarked chat to fail")
	}
}

func TestMarkerExpires(t *testing.T) {
	m := newSendMarkers(30 * time.Millisecond)

	m.Mark("chat@c.us")
	time.Sleep(60 * time.Millisecond)

	if m.Consume("chat@c.us") {
		t.Error("Expected marker to have expired")
	}
}

func TestMarkerRefreshKeepsSingleEntry(t *testing.T) {
	m := newSendMarkers(50 * time.Millisecond)

	m.Mark("chat@c.us")
	time.Sleep(30 * time.Millisecond)
	m.Mark("chat@c.us") // refresh
	time.Sleep(30 * time.Millisecond)

	// 60ms after the first mark but only 30ms after the refresh.
	if !m.Consume("chat@c.us") {
		t.Error("Expected refreshed marker to still be live")
	}
}
