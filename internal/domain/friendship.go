package domain

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

// Friendship is directed: UserID sent the request to FriendID.
type Friendship struct {
	ID        string           `json:"id"`
	UserID    UserID           `json:"user_id"`
	FriendID  UserID           `json:"friend_id"`
	Status    FriendshipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// FriendEntry is one row of a user's friend listing.
type FriendEntry struct {
	FriendshipID string           `json:"friendship_id"`
	Status       FriendshipStatus `json:"status"`
	ID           UserID           `json:"id"`
	Username     string           `json:"username"`
	Avatar       string           `json:"avatar"`
	UserStatus   Status           `json:"user_status"`
}

type FriendList struct {
	Friends         []FriendEntry `json:"friends"`
	PendingRequests []FriendEntry `json:"pendingRequests"`
	SentRequests    []FriendEntry `json:"sentRequests"`
}
