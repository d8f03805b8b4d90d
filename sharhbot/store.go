package sharhbot

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ExplanationRequest is a pending explanation submission awaiting a
// reviewer decision. Requests are intentionally ephemeral: they live
// only in memory, and leave the store either through a terminal
// decision (approve/reject) or the TTL sweep.
type ExplanationRequest struct {
	// ID is a time-derived token, unique for the process lifetime
	ID string `json:"id"`

	// CategoryID is the parent category the explanation channel will be
	// created under. Mutable via "approve with edits".
	CategoryID string `json:"category_id"`

	// RoomName is the proposed channel name. Mutable via "approve with edits".
	RoomName string `json:"room_name"`

	// Content is the submitted explanation text, possibly containing URLs.
	// Mutable via "approve with edits".
	Content string `json:"content"`

	// RequesterID and RequesterName identify the submitting user
	RequesterID   string `json:"requester_id"`
	RequesterName string `json:"requester_name"`

	// CreatedAt is the submission time. It is never updated - edits do
	// not refresh a request's TTL.
	CreatedAt time.Time `json:"created_at"`

	// OriginalCategoryID and OriginalRoomName snapshot the values at
	// submission time, so decision messages can show what a reviewer
	// changed.
	OriginalCategoryID string `json:"original_category_id"`
	OriginalRoomName   string `json:"original_room_name"`
}

func (r ExplanationRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", r.ID),
		slog.String("category_id", r.CategoryID),
		slog.String("room_name", r.RoomName),
		slog.String("requester_id", r.RequesterID),
		slog.String("requester_name", r.RequesterName),
		slog.Time("created_at", r.CreatedAt),
	)
}

// RequestStore owns every live ExplanationRequest, keyed by ID. No
// other component holds a request across calls - each workflow
// transition looks the record up fresh, so a record that vanished
// mid-flight is a normal not-found outcome rather than a fault.
type RequestStore struct {
	mu       sync.Mutex
	requests map[string]*ExplanationRequest

	// lastID is the most recently issued millisecond-derived ID,
	// bumped on collision so IDs stay unique within the process
	lastID int64

	logger *slog.Logger
}

func NewRequestStore(logger *slog.Logger) *RequestStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestStore{
		requests: map[string]*ExplanationRequest{},
		logger:   logger.With(loggerNameKey, "request_store"),
	}
}

// Create stores the given request under a freshly generated ID, sets
// CreatedAt and the original-value snapshot fields, and returns the ID.
func (s *RequestStore) Create(request ExplanationRequest) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	request.ID = strconv.FormatInt(id, 10)
	request.CreatedAt = time.Now().UTC()
	request.OriginalCategoryID = request.CategoryID
	request.OriginalRoomName = request.RoomName

	s.requests[request.ID] = &request
	return request.ID
}

// Get returns a copy of the request with the given ID. A false return
// is the normal outcome for expired, decided or unknown IDs.
func (s *RequestStore) Get(id string) (ExplanationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return ExplanationRequest{}, false
	}
	return *request, true
}

// Update applies the mutator to the stored request, if it still exists.
// Returns false if the ID no longer resolves.
func (s *RequestStore) Update(id string, mutate func(*ExplanationRequest)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return false
	}
	mutate(request)
	return true
}

// Delete removes the request with the given ID. Deleting an absent ID
// is not an error, since two reviewers may race to decide the same
// request.
func (s *RequestStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
}

// Len reports the number of live requests.
func (s *RequestStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// SweepExpired removes every request whose CreatedAt is older than ttl
// relative to now, returning the IDs removed. Expired requests are
// dropped silently - nobody is notified.
func (s *RequestStore) SweepExpired(now time.Time, ttl time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, request := range s.requests {
		if now.Sub(request.CreatedAt) > ttl {
			delete(s.requests, id)
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		s.logger.Info(
			"swept expired explanation requests",
			"count", len(expired),
			"request_ids", expired,
		)
	}
	return expired
}
