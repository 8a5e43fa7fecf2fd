// Package crypto implements the iStrip+ payload encryption: AES-128 in ECB
// mode over fixed 16-byte command frames with a vendor-hardcoded key. ECB's
// lack of semantic security is acceptable here — the payloads are short,
// fixed-structure device commands, not confidential data, and the strip's
// firmware demands exactly this construction.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// KeySize is the AES-128 key length the strip firmware expects.
const KeySize = 16

// Encrypt encrypts a block-aligned plaintext with AES-128-ECB. Each 16-byte
// block is encrypted independently with the same key, matching the device's
// decryption.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := newBlockCipher(key)
	if err != nil {
		return nil, err
	}
	if len(plaintext) == 0 || len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ble/crypto: plaintext must be a non-empty multiple of %d bytes, got %d", aes.BlockSize, len(plaintext))
	}
	ciphertext := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += aes.BlockSize {
		block.Encrypt(ciphertext[i:i+aes.BlockSize], plaintext[i:i+aes.BlockSize])
	}
	return ciphertext, nil
}

// Decrypt reverses Encrypt. The daemon never decrypts device traffic; this
// exists for frame inspection in tests and the scan utility.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := newBlockCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ble/crypto: ciphertext must be a non-empty multiple of %d bytes, got %d", aes.BlockSize, len(ciphertext))
	}
	plaintext := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(plaintext[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return plaintext, nil
}

func newBlockCipher(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("ble/crypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ble/crypto: new cipher: %w", err)
	}
	return block, nil
}
