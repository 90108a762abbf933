package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/log"
	"github.com/code-and-cash/cashctl/internal/session"
)

// SessionStore is the part of the session store the auth client writes to.
type SessionStore interface {
	Save(token string, user session.User) (*session.Session, error)
	Read() session.Session
	UpdateUser(user session.User) error
	Clear() error
}

// LoginInput is the body of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// ProfileInput is the body of PATCH /users/profile. Empty fields are left
// unchanged by the backend.
type ProfileInput struct {
	Name  string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// authResponse is the login/register contract:
// {"status":"success","token":"...","data":{"user":{...}}}
type authResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message"`
	Data    struct {
		User *User `json:"user"`
	} `json:"data"`
}

// Auth signs users in and out and keeps the session store current.
type Auth struct {
	client *api.Client
	store  SessionStore
	logger *log.Logger
}

// NewAuth creates an auth client.
func NewAuth(client *api.Client, store SessionStore, logger *log.Logger) *Auth {
	return &Auth{client: client, store: store, logger: logger}
}

// Login authenticates and persists the returned session.
func (a *Auth) Login(ctx context.Context, in LoginInput) (*session.Session, error) {
	if err := api.ValidateStruct(in); err != nil {
		return nil, err
	}
	var resp authResponse
	if err := a.client.Do(ctx, api.Request{Method: http.MethodPost, Path: "/auth/login", Body: in}, &resp); err != nil {
		return nil, fmt.Errorf("market: login: %w", err)
	}
	return a.establish(resp, log.EventLogin)
}

// Register creates an account and signs it in.
func (a *Auth) Register(ctx context.Context, in RegisterInput) (*session.Session, error) {
	if err := api.ValidateStruct(in); err != nil {
		return nil, err
	}
	var resp authResponse
	if err := a.client.Do(ctx, api.Request{Method: http.MethodPost, Path: "/auth/register", Body: in}, &resp); err != nil {
		return nil, fmt.Errorf("market: register: %w", err)
	}
	return a.establish(resp, log.EventRegister)
}

func (a *Auth) establish(resp authResponse, event string) (*session.Session, error) {
	if resp.Status != "success" || resp.Token == "" || resp.Data.User == nil {
		msg := resp.Message
		if msg == "" {
			msg = "authentication was not accepted"
		}
		return nil, api.NewError(http.StatusOK, msg, "AUTH_REJECTED")
	}

	sess, err := a.store.Save(resp.Token, resp.Data.User.SessionUser())
	if err != nil {
		return nil, fmt.Errorf("market: saving session: %w", err)
	}
	a.log(event, sess, "")
	return sess, nil
}

// Me fetches the current account from the backend. The session store is not
// modified.
func (a *Auth) Me(ctx context.Context) (User, error) {
	raw, err := a.client.Raw(ctx, api.Request{Method: http.MethodGet, Path: "/auth/me"})
	if err != nil {
		return User{}, fmt.Errorf("market: fetching profile: %w", err)
	}
	return decodeUser(raw)
}

// UpdateProfile changes the caller's name or email and refreshes the stored
// user.
func (a *Auth) UpdateProfile(ctx context.Context, in ProfileInput) (User, error) {
	if err := api.ValidateStruct(in); err != nil {
		return User{}, err
	}
	if in == (ProfileInput{}) {
		verr := &api.ValidationError{}
		verr.Add("profile", "nothing to update")
		return User{}, verr
	}

	raw, err := a.client.Raw(ctx, api.Request{Method: http.MethodPatch, Path: "/users/profile", Body: in})
	if err != nil {
		return User{}, fmt.Errorf("market: updating profile: %w", err)
	}

	u, err := decodeUser(raw)
	if errors.Is(err, api.ErrInvalidEnvelope) {
		// Bare acknowledgment: apply the change to the cached profile.
		cached := a.store.Read()
		if cached.User == nil {
			return User{}, session.ErrNoSession
		}
		u = User{ID: cached.User.ID, Email: cached.User.Email, Name: cached.User.Name, Role: cached.User.Role}
		if in.Name != "" {
			u.Name = in.Name
		}
		if in.Email != "" {
			u.Email = in.Email
		}
	} else if err != nil {
		return User{}, err
	}

	if err := a.store.UpdateUser(u.SessionUser()); err != nil {
		return User{}, fmt.Errorf("market: saving profile: %w", err)
	}
	return u, nil
}

// Logout tells the backend, ignoring any failure, and always clears the
// local session.
func (a *Auth) Logout(ctx context.Context) error {
	sess := a.store.Read()
	if sess.Token != "" {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_ = a.client.Do(ctx, api.Request{Method: http.MethodPost, Path: "/auth/logout"}, nil)
		cancel()
	}
	if err := a.store.Clear(); err != nil {
		return fmt.Errorf("market: clearing session: %w", err)
	}
	a.log(log.EventLogout, &sess, "")
	return nil
}

func decodeUser(raw json.RawMessage) (User, error) {
	u, ok, err := api.DecodeEntity[User](raw, "user")
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, fmt.Errorf("market: decoding user: %w", api.ErrInvalidEnvelope)
	}
	return u, nil
}

func (a *Auth) log(event string, sess *session.Session, reason string) {
	if a.logger == nil || sess == nil {
		return
	}
	ev := log.LogEvent{Event: event, SessionID: sess.ID, Reason: reason}
	if sess.User != nil {
		ev.UserID = sess.User.ID
		ev.Role = string(sess.User.Role)
	}
	_ = a.logger.Append(ev)
}
