package out

import (
	"context"
	"errors"

	"mailmind_server/core/domain"
)

// ErrNoSnapshot is returned by Load when nothing was saved yet.
var ErrNoSnapshot = errors.New("no skill snapshot saved")

// SnapshotStore keeps the durable skill library document.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *domain.SkillSnapshot) error
	Load(ctx context.Context) (*domain.SkillSnapshot, error)
}
