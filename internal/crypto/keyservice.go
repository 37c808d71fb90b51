package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"freecord/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/hkdf"
)

const keySize = 32

var errCiphertextTooShort = errors.New("ciphertext too short")

// KeyService derives one AES-256 key per scope key id from a master secret
// and serves the encrypt/decrypt endpoints the Client calls.
type KeyService struct {
	master []byte

	mu   sync.Mutex
	keys map[int64]cipher.AEAD
}

func NewKeyService(master []byte) *KeyService {
	secret := make([]byte, len(master))
	copy(secret, master)
	return &KeyService{
		master: secret,
		keys:   make(map[int64]cipher.AEAD),
	}
}

func (s *KeyService) aead(keyID int64) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gcm, ok := s.keys[keyID]; ok {
		return gcm, nil
	}

	info := make([]byte, 8)
	binary.LittleEndian.PutUint64(info, uint64(keyID))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.master, nil, info), key); err != nil {
		return nil, fmt.Errorf("derive key %d: %w", keyID, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	s.keys[keyID] = gcm
	return gcm, nil
}

// Seal returns base64(nonce || ciphertext).
func (s *KeyService) Seal(keyID int64, plaintext string) (string, error) {
	gcm, err := s.aead(keyID)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ct := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ct...)), nil
}

func (s *KeyService) Open(keyID int64, encoded string) (string, error) {
	gcm, err := s.aead(keyID)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", errCiphertextTooShort
	}
	nonce, ct := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func (s *KeyService) RegisterRoutes(r gin.IRoutes) {
	r.POST("/encrypt", s.handleEncrypt)
	r.POST("/decrypt", s.handleDecrypt)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *KeyService) handleEncrypt(c *gin.Context) {
	var req encryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	encrypted, err := s.Seal(req.ScopeID, req.Message)
	if err != nil {
		logger.Error("encrypt for key %d failed: %v", req.ScopeID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encryption failed"})
		return
	}
	c.JSON(http.StatusOK, encryptResponse{Encrypted: encrypted})
}

func (s *KeyService) handleDecrypt(c *gin.Context) {
	var req decryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	message, err := s.Open(req.ScopeID, req.Encrypted)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decryption failed"})
		return
	}
	c.JSON(http.StatusOK, decryptResponse{Message: message})
}
