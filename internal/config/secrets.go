package config

import (
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"
)

// LoadClientSecret resolves the client secret. An unset reference means a
// public client and yields an empty secret.
func LoadClientSecret(conf Auth) (string, error) {
	if conf.ClientSecret.Source == "" {
		return "", nil
	}

	secret, err := commoncfg.LoadValueFromSourceRef(conf.ClientSecret)
	if err != nil {
		return "", fmt.Errorf("loading client secret: %w", err)
	}

	return string(secret), nil
}

func MakeValKeyClientOption(conf ValKey) (valkey.ClientOption, error) {
	host, err := commoncfg.LoadValueFromSourceRef(conf.Host)
	if err != nil {
		return valkey.ClientOption{}, fmt.Errorf("loading valkey host: %w", err)
	}

	opt := valkey.ClientOption{
		InitAddress: []string{string(host)},
	}

	if conf.User.Source != "" {
		user, err := commoncfg.LoadValueFromSourceRef(conf.User)
		if err != nil {
			return valkey.ClientOption{}, fmt.Errorf("loading valkey user: %w", err)
		}
		opt.Username = string(user)
	}

	if conf.Password.Source != "" {
		password, err := commoncfg.LoadValueFromSourceRef(conf.Password)
		if err != nil {
			return valkey.ClientOption{}, fmt.Errorf("loading valkey password: %w", err)
		}
		opt.Password = string(password)
	}

	return opt, nil
}
