package types

const redacted = "***REDACTED***"

// SecretString prevents accidental logging or serialization of sensitive
// values (the push gateway API key, the database URL). String() and
// MarshalJSON() return a placeholder; call Unmask() where the raw value is
// genuinely required.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string { return redacted }

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string { return string(s) }
