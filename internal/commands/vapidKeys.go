package commands

import (
	"fmt"
	"io"

	"boltalka/internal/push"
)

// GenerateVAPIDKeys prints a fresh key pair in env file format.
func GenerateVAPIDKeys(w io.Writer) error {
	privateKey, publicKey, err := push.GenerateKeys()
	if err != nil {
		return fmt.Errorf("failed to generate VAPID keys: %w", err)
	}

	_, err = fmt.Fprintf(w, "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", publicKey, privateKey)
	return err
}
