package tokens

import "log/slog"

const redacted = "[REDACTED]"

// Secret wraps a credential so that it never reaches logs, error strings or
// serialized output by accident. Value returns the raw string.
type Secret struct {
	value string
}

func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Value returns the raw credential. Only use it to build a request.
func (s Secret) Value() string {
	return s.value
}

func (s Secret) IsEmpty() bool {
	return s.value == ""
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return "tokens.Secret{" + redacted + "}"
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
