package client

import (
	"context"
	"errors"

	"github.com/gymflow/server/internal/lockout"
)

// Guarded is a Client behind the device lockout
type Guarded struct {
	client *Client
	guard  *lockout.Guard
}

func NewGuarded(client *Client, guard *lockout.Guard) *Guarded {
	return &Guarded{client: client, guard: guard}
}

// Login refuses to call the server while the device is locked. Wrong
// credentials advance the lockout; when that locks the device the returned
// error also matches *lockout.LockedError.
func (g *Guarded) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := g.guard.Check(); err != nil {
		return nil, err
	}

	resp, err := g.client.Login(ctx, req)
	if err != nil {
		if !CountsTowardLockout(CategoryOf(err)) {
			return nil, err
		}
		if lerr := g.guard.RecordFailure(); lerr != nil {
			return nil, errors.Join(err, lerr)
		}
		return nil, err
	}

	if err := g.guard.RecordSuccess(); err != nil {
		return resp, err
	}
	return resp, nil
}
