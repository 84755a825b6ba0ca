package syncdoc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encNonceSize = 12
	encSaltSize  = 32
	encKeySize   = 32
	encKDFIters  = 100000
)

// EncryptionConfig configures encryption at rest for persisted records.
type EncryptionConfig struct {
	// Enabled turns on encryption.
	Enabled bool `yaml:"enabled"`
	// Key is the AES-256 key (32 bytes). Takes precedence over KeyPassword.
	Key []byte `yaml:"-"`
	// KeyPassword derives a key via PBKDF2 when Key is empty.
	KeyPassword string `yaml:"key_password"`
}

// Encryptor seals and opens record payloads with AES-256-GCM. Password mode
// derives a fresh key per payload and stores the salt alongside the nonce,
// so records remain readable across restarts.
type Encryptor struct {
	key      []byte
	password string
}

// NewEncryptor builds an encryptor from a key or password. A disabled
// config yields nil without error.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Key) > 0 {
		if len(cfg.Key) != encKeySize {
			return nil, errors.New("encryption key must be 32 bytes for AES-256")
		}
		return &Encryptor{key: cfg.Key}, nil
	}
	if cfg.KeyPassword != "" {
		return &Encryptor{password: cfg.KeyPassword}, nil
	}
	return nil, errors.New("encryption enabled but no key or password provided")
}

func (e *Encryptor) aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plain. Password mode output is salt||nonce||ciphertext;
// key mode omits the salt.
func (e *Encryptor) Encrypt(plain []byte) ([]byte, error) {
	key := e.key
	var salt []byte
	if key == nil {
		salt = make([]byte, encSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		key = pbkdf2.Key([]byte(e.password), salt, encKDFIters, encKeySize, sha256.New)
	}
	gcm, err := e.aead(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, encNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plain, nil)
	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	return append(out, sealed...), nil
}

// Decrypt opens data produced by Encrypt.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	key := e.key
	if key == nil {
		if len(data) < encSaltSize {
			return nil, fmt.Errorf("ciphertext too short")
		}
		key = pbkdf2.Key([]byte(e.password), data[:encSaltSize], encKDFIters, encKeySize, sha256.New)
		data = data[encSaltSize:]
	}
	if len(data) < encNonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	gcm, err := e.aead(key)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, data[:encNonceSize], data[encNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plain, nil
}
