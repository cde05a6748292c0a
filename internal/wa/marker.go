package wa

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// SendMarkerWindow is how long an API-send marker stays valid. A self-sent
// message event arriving within the window is attributed to the API; after
// that it counts as a manual send from the phone.
const SendMarkerWindow = 10 * time.Second

// SendMarkers flags chats that the API is currently sending to, so the
// takeover detector can tell API sends apart from manual phone sends.
// Entries expire on their own via the cache janitor and are additionally
// consumed on first read.
type SendMarkers struct {
	mu      sync.Mutex
	entries *cache.Cache
}

func NewSendMarkers() *SendMarkers {
	return newSendMarkers(SendMarkerWindow)
}

func newSendMarkers(window time.Duration) *SendMarkers {
	return &SendMarkers{
		entries: cache.New(window, window/2),
	}
}

// Mark records that an API send to the chat is in flight. At most one live
// marker exists per chat; a re-mark refreshes the window.
func (s *SendMarkers) Mark(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Set(chatID, time.Now(), cache.DefaultExpiration)
}

// Consume returns true and deletes the marker if a live one exists for the
// chat. Markers are single-use: a second send in the same window needs its
// own marker.
func (s *SendMarkers) Consume(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.entries.Get(chatID); !found {
		return false
	}
	s.entries.Delete(chatID)
	return true
}

// Active reports whether a live marker exists without consuming it.
func (s *SendMarkers) Active(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.entries.Get(chatID)
	return found
}
