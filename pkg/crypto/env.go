package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// SealMap encodes a key/value map for transport through an execution
// environment. With a secret the JSON payload is AES-GCM sealed and base64
// encoded; without one it is plain JSON.
func SealMap(secret string, values map[string]string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal env map: %w", err)
	}
	if secret == "" {
		return string(payload), nil
	}
	sealed, err := EncryptString(secret, string(payload))
	if err != nil {
		return "", fmt.Errorf("seal env map: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenMap reverses SealMap.
func OpenMap(secret, encoded string) (map[string]string, error) {
	if encoded == "" {
		return nil, nil
	}
	payload := encoded
	if secret != "" {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode env map: %w", err)
		}
		payload, err = DecryptToString(secret, raw)
		if err != nil {
			return nil, fmt.Errorf("open env map: %w", err)
		}
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return nil, fmt.Errorf("unmarshal env map: %w", err)
	}
	return values, nil
}
