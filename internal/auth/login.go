package auth

import (
	"context"
	"net/http"

	"github.com/LumeWeb/portal-legacy/internal/portal"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// poster is the part of portal.Client used to log in.
type poster interface {
	PostJSON(ctx context.Context, url, cookie string, body any) (*portal.Response, error)
}

// Login obtains a session cookie from the accounts service with a test
// account's email and password.
type Login struct {
	client   poster
	url      string
	email    string
	password string
}

// NewLogin targets https://account.{portalDomain}/api/login.
func NewLogin(client poster, portalDomain, email, password string) *Login {
	return &Login{
		client:   client,
		url:      "https://account." + portalDomain + "/api/login",
		email:    email,
		password: password,
	}
}

// WithURL overrides the login endpoint.
func (l *Login) WithURL(u string) *Login {
	l.url = u
	return l
}

func (l *Login) Credential(ctx context.Context) (string, error) {
	if l.email == "" || l.password == "" {
		return "", xerrors.New("account email and password are required for login")
	}
	resp, err := l.client.PostJSON(ctx, l.url, "", map[string]string{
		"email":    l.email,
		"password": l.password,
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "login to %s", l.url)
	}
	for _, c := range (&http.Response{Header: resp.Header}).Cookies() {
		if c.Name == CookieName && c.Value != "" {
			return CookieName + "=" + c.Value, nil
		}
	}
	return "", xerrors.Newf("login to %s returned no %s cookie", l.url, CookieName)
}
