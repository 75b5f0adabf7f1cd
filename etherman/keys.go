package etherman

import (
	"crypto/ecdsa"

	"github.com/crosslock/relay-go/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StringToPrivateKey parses a hex encoded secp256k1 private key,
// with or without 0x prefix.
func StringToPrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(common.Trim0xPrefix(hexKey))
}
