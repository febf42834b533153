package config

import (
	"log/slog"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const redacted = "[REDACTED]"

// loggedConfig has no LogValue method, so slog renders it field by field.
type loggedConfig Config

// LogValue masks the embedded values of secret references.
func (c Config) LogValue() slog.Value {
	c.Auth.ClientSecret = redactRef(c.Auth.ClientSecret)
	c.ValKey.User = redactRef(c.ValKey.User)
	c.ValKey.Password = redactRef(c.ValKey.Password)

	return slog.AnyValue(loggedConfig(c))
}

func redactRef(ref commoncfg.SourceRef) commoncfg.SourceRef {
	if ref.Value != "" {
		ref.Value = redacted
	}

	return ref
}
