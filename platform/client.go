// Package platform talks to the streaming site's member-facing API. All
// fetchers distinguish a definitive "not found" (errors.ErrNotFound) from
// transient failures; per-item fallback logic upstream depends on that
// distinction.
package platform

import (
	"context"
	"time"
)

// Profile is one member's public profile as returned by the site.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatarUrl"`
	IsLive      bool   `json:"isLive"`
	Followers   int64  `json:"followers"`
	Following   int64  `json:"following"`
}

// Event is one chat or tip event from the activity feed.
type Event struct {
	RemoteID   string    `json:"id"`
	Kind       string    `json:"kind"`
	MemberID   string    `json:"memberId"`
	Username   string    `json:"username"`
	Amount     int64     `json:"amount"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Event kinds.
const (
	EventKindChat = "chat"
	EventKindTip  = "tip"
)

// Message is one inbox message.
type Message struct {
	RemoteID string    `json:"id"`
	MemberID string    `json:"memberId"`
	Username string    `json:"username"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sentAt"`
}

// MediaItem is one downloadable media reference on a member's profile.
type MediaItem struct {
	MemberID string `json:"memberId"`
	URL      string `json:"url"`
}

// Client is the site API surface the jobs consume.
type Client interface {
	// FetchProfile fetches a profile via the role-specific endpoint. Returns
	// an errors.ErrNotFound-marked error when the member does not exist under
	// that role, which is what drives the role-fallback resolution.
	FetchProfile(ctx context.Context, username, role string) (*Profile, error)
	// ListFollowers lists accounts following the operator.
	ListFollowers(ctx context.Context) ([]Profile, error)
	// ListFollowing lists accounts the operator follows.
	ListFollowing(ctx context.Context) ([]Profile, error)
	// ListLive returns the usernames currently live among the operator's
	// followed accounts.
	ListLive(ctx context.Context) ([]string, error)
	// FetchEvents returns activity events newer than since.
	FetchEvents(ctx context.Context, since time.Time) ([]Event, error)
	// FetchMessages returns inbox messages newer than since.
	FetchMessages(ctx context.Context, since time.Time) ([]Message, error)
	// ListMedia lists a member's downloadable media.
	ListMedia(ctx context.Context, username string) ([]MediaItem, error)
}
