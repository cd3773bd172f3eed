package dpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Authenticator exchanges client credentials for a bearer token. Every call
// to Token performs a new request; nothing is cached between runs.
type Authenticator struct {
	ClientID     string
	ClientSecret string
	TokenURL     string

	// IssuerURL is used to discover TokenURL when TokenURL is empty.
	IssuerURL string

	HTTPClient *http.Client
}

func NewAuthenticator(cfg Config, httpClient *http.Client) *Authenticator {
	return &Authenticator{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		IssuerURL:    cfg.OIDCIssuerURL,
		HTTPClient:   httpClient,
	}
}

func (a *Authenticator) Token(ctx context.Context) (string, error) {
	if a.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}

	tokenURL, err := a.tokenURL(ctx)
	if err != nil {
		return "", err
	}

	cc := clientcredentials.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return "", &StatusError{
				Op:         "obtain token",
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       strings.TrimSpace(string(retrieveErr.Body)),
			}
		}
		return "", fmt.Errorf("obtain token: %w", err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", errors.New("obtain token: response has no access_token")
	}
	return tok.AccessToken, nil
}

func (a *Authenticator) tokenURL(ctx context.Context) (string, error) {
	if u := strings.TrimSpace(a.TokenURL); u != "" {
		return u, nil
	}
	if strings.TrimSpace(a.IssuerURL) == "" {
		return "", errors.New("token url or issuer url is required")
	}
	if a.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, a.HTTPClient)
	}
	provider, err := oidc.NewProvider(ctx, a.IssuerURL)
	if err != nil {
		return "", fmt.Errorf("oidc provider: %w", err)
	}
	tokenURL := provider.Endpoint().TokenURL
	if tokenURL == "" {
		return "", fmt.Errorf("oidc provider %s advertises no token endpoint", a.IssuerURL)
	}
	return tokenURL, nil
}
