package dpc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/maia-experience/dpc-cicd/internal/platform/env"
)

const (
	DefaultEnvironmentName = "demo"
	DefaultAPIDomain       = "api.matillion.com"
)

// Config is everything a publish run needs, resolved once at startup.
type Config struct {
	ClientID      string
	ClientSecret  string
	TokenURL      string
	OIDCIssuerURL string

	ProjectID     string
	AccountRegion string
	APIDomain     string

	// BaseURL is derived from AccountRegion and APIDomain when empty.
	BaseURL string

	VersionName           string
	BranchName            string
	EnvironmentName       string
	CheckpointDescription string

	HTTPTimeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("DPC_HTTP_TIMEOUT", 0)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ClientID:              env.NonEmpty("DPC_CLIENT_ID", ""),
		ClientSecret:          env.NonEmpty("DPC_CLIENT_SECRET", ""),
		TokenURL:              env.NonEmpty("DPC_TOKEN_URL", ""),
		OIDCIssuerURL:         env.NonEmpty("DPC_OIDC_ISSUER_URL", ""),
		ProjectID:             env.NonEmpty("DPC_PROJECT_ID", ""),
		AccountRegion:         env.NonEmpty("DPC_ACCOUNT_REGION", ""),
		APIDomain:             env.NonEmpty("DPC_API_DOMAIN", DefaultAPIDomain),
		VersionName:           env.NonEmpty("VERSION_NAME", ""),
		BranchName:            env.NonEmpty("BRANCH_NAME", ""),
		EnvironmentName:       env.NonEmpty("DPC_ENVIRONMENT_NAME", DefaultEnvironmentName),
		CheckpointDescription: env.String("DPC_CHECKPOINT_DESCRIPTION", ""),
		HTTPTimeout:           timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.BaseURL = cfg.apiBaseURL()
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	required := []struct {
		key   string
		value string
	}{
		{"DPC_CLIENT_ID", c.ClientID},
		{"DPC_CLIENT_SECRET", c.ClientSecret},
		{"DPC_PROJECT_ID", c.ProjectID},
		{"DPC_ACCOUNT_REGION", c.AccountRegion},
		{"VERSION_NAME", c.VersionName},
		{"BRANCH_NAME", c.BranchName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if strings.TrimSpace(c.TokenURL) == "" && strings.TrimSpace(c.OIDCIssuerURL) == "" {
		errs = append(errs, errors.New("DPC_TOKEN_URL is required (or DPC_OIDC_ISSUER_URL for discovery)"))
	}
	if strings.TrimSpace(c.EnvironmentName) == "" {
		errs = append(errs, errors.New("DPC_ENVIRONMENT_NAME must not be blank"))
	}
	if c.HTTPTimeout < 0 {
		errs = append(errs, errors.New("DPC_HTTP_TIMEOUT must be >= 0"))
	}
	return errors.Join(errs...)
}

func (c Config) apiBaseURL() string {
	if strings.TrimSpace(c.BaseURL) != "" {
		return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	}
	return fmt.Sprintf("https://%s.%s", c.AccountRegion, c.APIDomain)
}

// Endpoints are the DPC API URLs a run talks to.
type Endpoints struct {
	Artifacts        string
	Executions       string
	CustomConnectors string
	FlexConnectors   string
}

// Endpoints derives the API URLs. Artifacts and executions are project
// scoped; connector listings are account level.
func (c Config) Endpoints() Endpoints {
	base := c.apiBaseURL()
	project := base + "/dpc/v1/projects/" + url.PathEscape(c.ProjectID)
	return Endpoints{
		Artifacts:        project + "/artifacts",
		Executions:       project + "/pipeline-executions",
		CustomConnectors: base + "/dpc/v1/custom-connectors",
		FlexConnectors:   base + "/dpc/v1/flex-connectors",
	}
}
