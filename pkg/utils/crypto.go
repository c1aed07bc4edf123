package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/rovshanmuradov/tipstark/internal/logging"
	"go.uber.org/zap"
)

const keySize = 32 // AES-256

var ErrCiphertextTooShort = errors.New("ciphertext too short")

func aead(key string) (cipher.AEAD, error) {
	if len(key) < keySize {
		return nil, fmt.Errorf("encryption key must be at least %d bytes long", keySize)
	}
	block, err := aes.NewCipher([]byte(key)[:keySize])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptData seals data with AES-GCM; the nonce is prepended to the output.
func EncryptData(data []byte, key string) ([]byte, error) {
	logger := logging.GetLogger()

	gcm, err := aead(key)
	if err != nil {
		logger.Error("Failed to create cipher", zap.Error(err))
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		logger.Error("Failed to generate nonce", zap.Error(err))
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

func DecryptData(data []byte, key string) ([]byte, error) {
	logger := logging.GetLogger()

	gcm, err := aead(key)
	if err != nil {
		logger.Error("Failed to create cipher", zap.Error(err))
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		logger.Error("Ciphertext too short", zap.Int("dataSize", len(data)), zap.Int("nonceSize", gcm.NonceSize()))
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		logger.Error("Failed to decrypt data", zap.Error(err))
		return nil, err
	}
	return plaintext, nil
}
