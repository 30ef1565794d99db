package secrets

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"

	"github.com/rs/zerolog/log"
)

const valueLength = 32

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generate creates the named secret files with random values. Existing
// secrets are left alone unless force is set. Returns the number of secrets
// written.
func (s *Store) Generate(names []string, force bool) (int, error) {
	if err := os.MkdirAll(s.dir, DirMode); err != nil {
		return 0, fmt.Errorf("create secrets dir: %w", err)
	}
	written := 0
	for _, name := range names {
		if s.Exists(name) && !force {
			log.Debug().Str("secret", name).Msg("secret already exists, skipping")
			continue
		}
		value, err := randomValue(valueLength)
		if err != nil {
			return written, fmt.Errorf("generate %s: %w", name, err)
		}
		if err := os.WriteFile(s.Path(name), []byte(value+"\n"), FileMode); err != nil {
			return written, fmt.Errorf("write secret %s: %w", name, err)
		}
		// WriteFile only applies the mode on creation; force the mode so
		// regenerated secrets end up owner-only as well.
		if err := os.Chmod(s.Path(name), FileMode); err != nil {
			return written, fmt.Errorf("chmod secret %s: %w", name, err)
		}
		log.Info().Str("secret", name).Msg("secret generated")
		written++
	}
	return written, nil
}

func randomValue(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
