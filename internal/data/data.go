// Package data provides data access layer implementations.
// It handles database connections and data persistence.
package data

import (
	"PesaGate/internal/conf"
	"PesaGate/pkg/crypto"

	"github.com/google/wire"
)

// ProviderSet is data providers. Repository constructors live in the
// biz ProviderSet next to their interface bindings.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
	NewAESCrypto,
)

// NewAESCrypto derives the phone-number encryption key from the
// configured passphrase.
func NewAESCrypto(c *conf.Bootstrap) (*crypto.AESCrypto, error) {
	return crypto.NewAESCryptoFromPassphrase(c.Auth.Encryption.Key)
}
