// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/openkcm/oidc-login/internal/storage"
)

type ProofStoreType string

const (
	ProofStoreValKey ProofStoreType = "valkey"
	ProofStoreFile   ProofStoreType = "file"
	ProofStoreMemory ProofStoreType = "memory"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Auth       Auth       `yaml:"auth"`
	ProofStore ProofStore `yaml:"proofStore"`
	ValKey     ValKey     `yaml:"valkey"`
	Retry      Retry      `yaml:"retry"`
	Discovery  Discovery  `yaml:"discovery"`
	HTTP       HTTPClient `yaml:"http"`
	Dispatcher Dispatcher `yaml:"dispatcher"`
	GitHub     GitHub     `yaml:"github"`
}

type Auth struct {
	ClientID     string              `yaml:"clientID"`
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`
	IssuerURL    string              `yaml:"issuerURL"`
	RedirectURL  string              `yaml:"redirectURL" default:"http://localhost:8400/callback"`
	// APIScope is requested next to openid, e.g. api://<app-id>/.default.
	APIScope        string        `yaml:"apiScope"`
	Scopes          []string      `yaml:"scopes"`
	CallbackTimeout time.Duration `yaml:"callbackTimeout" default:"10m"`
}

// ProofStore selects where login proofs and tokens are kept between the two
// halves of a login.
type ProofStore struct {
	Type  ProofStoreType `yaml:"type" default:"file"`
	Scope string         `yaml:"scope" default:"default"`
	TTL   time.Duration  `yaml:"ttl" default:"10m"`
	Dir   string         `yaml:"dir"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"oidc-login"`
}

type Retry struct {
	MaxAttempts  int           `yaml:"maxAttempts" default:"3"`
	InitialDelay time.Duration `yaml:"initialDelay" default:"3s"`
	// Mode is strict (retry any non-200) or transient (5xx, 429 and
	// transport errors only).
	Mode                     string `yaml:"mode" default:"strict"`
	TokenExchangeMaxAttempts int    `yaml:"tokenExchangeMaxAttempts" default:"1"`
}

type Discovery struct {
	CacheTTL time.Duration `yaml:"cacheTTL" default:"1h"`
}

type HTTPClient struct {
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

type Dispatcher struct {
	APIURL string `yaml:"apiURL"`
}

// GitHub is where pipeline repositories are listed from.
type GitHub struct {
	APIURL string `yaml:"apiURL" default:"https://api.github.com/"`
}

// Validate reports missing settings needed to log in.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.ClientID == "" {
		errs = append(errs, errors.New("auth.clientID is required"))
	}
	if c.Auth.IssuerURL == "" {
		errs = append(errs, errors.New("auth.issuerURL is required"))
	}
	if c.Auth.RedirectURL == "" {
		errs = append(errs, errors.New("auth.redirectURL is required"))
	}

	switch c.ProofStore.Type {
	case "", ProofStoreValKey, ProofStoreFile, ProofStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("proofStore.type %q is not one of valkey, file, memory", c.ProofStore.Type))
	}

	if err := storage.ValidateScope(c.ProofStore.Scope); err != nil {
		errs = append(errs, fmt.Errorf("proofStore.scope: %w", err))
	}

	switch c.Retry.Mode {
	case "", "strict", "transient":
	default:
		errs = append(errs, fmt.Errorf("retry.mode %q is not one of strict, transient", c.Retry.Mode))
	}

	if c.Retry.MaxAttempts < 0 || c.Retry.TokenExchangeMaxAttempts < 0 {
		errs = append(errs, errors.New("retry attempts must not be negative"))
	}

	return errors.Join(errs...)
}
