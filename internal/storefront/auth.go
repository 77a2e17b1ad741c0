package storefront

import (
	"context"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
)

// User is an account registration.
type User struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// Session is the backend's answer to a successful login.
type Session struct {
	Token string `json:"token"`
}

// AuthService wraps the authentication endpoints.
type AuthService struct {
	client *Client
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates and returns the session. The password never becomes
// a span attribute.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	attrs := []attribute.KeyValue{attribute.String("user.email", email)}
	err := s.client.call(ctx, "login", attrs, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(credentials{Email: email, Password: password}).SetResult(&session).Post("/api/auth/login")
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Register creates an account.
func (s *AuthService) Register(ctx context.Context, user User) error {
	attrs := []attribute.KeyValue{attribute.String("user.email", user.Email)}
	return s.client.call(ctx, "register", attrs, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(user).Post("/api/auth/register")
	})
}
