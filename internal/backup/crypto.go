package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

// Encrypted file layout:
//
//	[4-byte magic "GDB1"][16-byte salt][12-byte nonce][AES-256-GCM ciphertext]
var magic = []byte("GDB1")

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4

	headerSize = 4 + saltSize + nonceSize
)

var (
	ErrNotBackup       = errors.New("not an encrypted backup")
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted backup")
)

// GenerateSalt returns 16 cryptographically random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// Verifier fingerprints a derived key so a passphrase can be checked later
// without storing it.
func Verifier(key []byte) []byte {
	sum := sha256.Sum256(append([]byte("giadinh-backup-verifier:"), key...))
	return sum[:]
}

func checkVerifier(key, want []byte) bool {
	return subtle.ConstantTimeCompare(Verifier(key), want) == 1
}

// Seal encrypts plaintext with key and writes the full file layout to w.
// salt is recorded in the header so the file can be opened with the
// passphrase alone.
func Seal(w io.Writer, plaintext, key, salt []byte) error {
	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	header := make([]byte, 0, headerSize)
	header = append(header, magic...)
	header = append(header, salt...)
	header = append(header, nonce...)

	// The header is authenticated as additional data.
	ciphertext := gcm.Seal(nil, nonce, plaintext, header)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(ciphertext); err != nil {
		return fmt.Errorf("write ciphertext: %w", err)
	}
	return nil
}

// Open decrypts a sealed backup with the passphrase.
func Open(data []byte, passphrase string) ([]byte, error) {
	if len(data) < headerSize || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrNotBackup
	}
	header := data[:headerSize]
	salt := header[len(magic) : len(magic)+saltSize]
	nonce := header[len(magic)+saltSize:]

	gcm, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[headerSize:], header)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

// EncryptFile encrypts srcPath into dstPath.
func EncryptFile(srcPath, dstPath string, key, salt []byte) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create encrypted file: %w", err)
	}
	if err := Seal(out, plaintext, key, salt); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// DecryptFile decrypts srcPath into dstPath.
func DecryptFile(srcPath, dstPath, passphrase string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read encrypted file: %w", err)
	}
	plaintext, err := Open(data, passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dstPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("write decrypted file: %w", err)
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
