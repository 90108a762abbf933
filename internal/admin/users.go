package admin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/market"
	"github.com/code-and-cash/cashctl/internal/session"
)

// Users manages accounts.
type Users struct {
	client *api.Client
}

type roleUpdate struct {
	Role session.Role `json:"role" validate:"required,oneof=user admin"`
}

// List returns one page of users.
func (u *Users) List(ctx context.Context, q api.ListQuery) (api.ListResult[market.User], error) {
	res, err := api.List[market.User](ctx, u.client, "/admin/users", q, "users")
	if err != nil {
		return res, fmt.Errorf("admin: listing users: %w", err)
	}
	return res, nil
}

// Delete removes a user.
func (u *Users) Delete(ctx context.Context, id string) error {
	return remove(ctx, u.client, "users", id)
}

// UpdateRole changes a user's role. ok is false when the backend returned
// no entity.
func (u *Users) UpdateRole(ctx context.Context, id string, role session.Role) (market.User, bool, error) {
	if err := requireID(id); err != nil {
		return market.User{}, false, err
	}
	body := roleUpdate{Role: role}
	if err := api.ValidateStruct(body); err != nil {
		return market.User{}, false, err
	}
	user, ok, err := api.Mutate[market.User](ctx, u.client, http.MethodPatch, entityPath("users", id, "role"), body, "user")
	if err != nil {
		return market.User{}, false, fmt.Errorf("admin: updating role of %s: %w", id, err)
	}
	return user, ok, nil
}
