package core

import (
	"context"

	"github.com/dkeye/owndc/internal/domain"
)

// Store is the slice of the persistent store the real-time layer reads
// and writes. Implementations return storage.ErrNotFound for missing rows.
type Store interface {
	GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	SetUserStatus(ctx context.Context, id domain.UserID, status domain.Status) error
	GetAcceptedFriends(ctx context.Context, id domain.UserID) ([]domain.Profile, error)
	IsChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) (bool, error)
}
