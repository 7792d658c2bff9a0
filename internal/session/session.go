// Package session holds authentication state and the login lifecycle.
//
// The in-memory State is the only token source the dispatch layer reads.
// Durable storage is a write-through copy kept by Mirror and read back
// once at startup by Rehydrate.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/auth"
	"github.com/yigit/academydesk/internal/pkg/kvstore"
	"github.com/yigit/academydesk/internal/pkg/logger"
	"github.com/yigit/academydesk/internal/remote"
	"github.com/yigit/academydesk/internal/store"
)

// Session action types
const (
	ActionLoginRequest    = "LOGIN_REQUEST"
	ActionLoginSuccess    = "LOGIN_SUCCESS"
	ActionLoginFailure    = "LOGIN_FAILURE"
	ActionRehydrate       = "SESSION_REHYDRATE"
	ActionRedirectHandled = "REDIRECT_HANDLED"
)

// User is the signed-in account
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// State is the session slice
type State struct {
	Token           string `json:"-"`
	User            *User  `json:"user"`
	IsAuthenticated bool   `json:"isAuthenticated"`

	// NeedsLoginRedirect is raised by LOGOUT and lowered by REDIRECT_HANDLED
	NeedsLoginRedirect bool `json:"needsLoginRedirect"`

	Loading bool                   `json:"loading"`
	Error   *apperrors.RemoteError `json:"error"`
}

// LoginResult is the decoded login response
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Token returns the bearer token held by s
func Token(s State) string {
	return s.Token
}

// Reduce folds session actions into state
func Reduce(state State, action store.Action) State {
	switch action.Type {
	case ActionLoginRequest:
		state.Loading = true
		state.Error = nil

	case ActionLoginSuccess:
		res, ok := action.Payload.(LoginResult)
		if !ok || res.Token == "" {
			state.Loading = false
			state.Error = apperrors.NewTransportError(errors.New("login response carried no token"))
			break
		}
		return State{
			Token:           res.Token,
			User:            res.User,
			IsAuthenticated: true,
		}

	case ActionLoginFailure:
		state.Loading = false
		state.Error = remoteError(action.Payload)

	case remote.ActionSessionError:
		state.Error = remoteError(action.Payload)

	case remote.ActionLogout:
		next := State{NeedsLoginRedirect: true}
		if err, ok := action.Payload.(error); ok {
			next.Error = apperrors.AsRemote(err)
		}
		return next

	case ActionRehydrate:
		if s, ok := action.Payload.(State); ok {
			return s
		}

	case ActionRedirectHandled:
		state.NeedsLoginRedirect = false
	}
	return state
}

func remoteError(payload any) *apperrors.RemoteError {
	if err, ok := payload.(error); ok {
		return apperrors.AsRemote(err)
	}
	return nil
}

// Login builds the credentials request against url
func Login(email, password, url string) remote.Request {
	return remote.Request{
		URL:    url,
		Method: remote.POST,
		Body: map[string]string{
			"email":    email,
			"password": password,
		},
		OnStart:    remote.ActionHook(ActionLoginRequest),
		OnSuccess:  remote.ActionHook(ActionLoginSuccess),
		OnFailure:  remote.ActionHook(ActionLoginFailure),
		Decode:     decodeLogin,
		UnwrapData: true,
	}
}

func decodeLogin(body []byte) (any, error) {
	var res struct {
		LoginResult
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	out := res.LoginResult
	if out.Token == "" {
		out.Token = res.AccessToken
	}
	if out.Token == "" {
		return nil, errors.New("login response carried no token")
	}
	// opaque tokens carry no claims; the user stays unknown
	if out.User == nil {
		if claims, err := auth.ParseUnverified(out.Token); err == nil {
			out.User = userFromClaims(claims)
		}
	}
	return out, nil
}

func userFromClaims(c *auth.Claims) *User {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return &User{ID: id, Email: c.Email, Name: c.Name, Role: c.Role}
}

// Rehydrate restores the session from durable storage. Tokens are opaque;
// only a JWT whose exp has passed is removed and an anonymous State returned.
func Rehydrate(ctx context.Context, kv kvstore.Store, key string) (State, error) {
	log := logger.For("session")

	token, err := kv.Get(ctx, key)
	if errors.Is(err, apperrors.ErrKeyNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read durable token: %w", err)
	}

	if token == "" {
		return State{}, nil
	}

	state := State{Token: token, IsAuthenticated: true}
	claims, err := auth.ParseUnverified(token)
	if err != nil {
		log.Debug().Err(err).Msg("Stored token is not a JWT, keeping it as is")
		return state, nil
	}
	if claims.Expired(time.Now()) {
		log.Info().Err(auth.ErrExpiredToken).Msg("Dropping stored token")
		if rmErr := kv.Remove(ctx, key); rmErr != nil {
			return State{}, fmt.Errorf("remove stale token: %w", rmErr)
		}
		return State{}, nil
	}

	state.User = userFromClaims(claims)
	return state, nil
}
