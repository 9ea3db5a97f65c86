package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrTampered    = errors.New("stored value failed verification")
	ErrStorageFull = errors.New("stored value is too large")
)

const (
	// Browsers cap a cookie near 4 KiB, so larger values span numbered cookies.
	cookieChunkSize = 3800
	maxCookieChunks = 8
)

// Storage keeps small per-visitor blobs, the server-side stand-in for browser storage.
type Storage interface {
	// Load returns the blob under key, or nil when nothing is stored.
	Load(r *http.Request, key string) ([]byte, error)
	Save(w http.ResponseWriter, r *http.Request, key string, blob []byte) error
}

// CookieStorage keeps each key in its own HMAC-signed cookie.
type CookieStorage struct {
	key    []byte
	secure bool
	maxAge time.Duration
}

// NewCookieStorage derives the signing key from secret with HKDF-SHA256.
func NewCookieStorage(secret []byte, secure bool) (*CookieStorage, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, []byte("bookstore-storefront"), []byte("cookie-storage v1")), key); err != nil {
		return nil, fmt.Errorf("derive cookie key: %w", err)
	}
	return &CookieStorage{key: key, secure: secure, maxAge: 30 * 24 * time.Hour}, nil
}

func (s *CookieStorage) cookieName(key string) string { return "st_" + key }

// chunkName names the i-th cookie of key; the first chunk keeps the plain name.
func (s *CookieStorage) chunkName(key string, i int) string {
	if i == 0 {
		return s.cookieName(key)
	}
	return s.cookieName(key) + "." + strconv.Itoa(i)
}

func (s *CookieStorage) readChunks(r *http.Request, key string) string {
	var sb strings.Builder
	for i := 0; i < maxCookieChunks; i++ {
		c, err := r.Cookie(s.chunkName(key, i))
		if err != nil || c.Value == "" {
			break
		}
		sb.WriteString(c.Value)
	}
	return sb.String()
}

func (s *CookieStorage) sign(key string, payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write(payload)
	return mac.Sum(nil)
}

func (s *CookieStorage) Load(r *http.Request, key string) ([]byte, error) {
	value := s.readChunks(r, key)
	if value == "" {
		return nil, nil
	}
	payloadB64, sigB64, ok := strings.Cut(value, ".")
	if !ok {
		return nil, ErrTampered
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, ErrTampered
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil || !hmac.Equal(sig, s.sign(key, payload)) {
		return nil, ErrTampered
	}
	return payload, nil
}

func (s *CookieStorage) Save(w http.ResponseWriter, r *http.Request, key string, blob []byte) error {
	value := base64.RawURLEncoding.EncodeToString(blob) + "." + base64.RawURLEncoding.EncodeToString(s.sign(key, blob))
	if len(value) > cookieChunkSize*maxCookieChunks {
		return fmt.Errorf("%s: %d bytes: %w", key, len(value), ErrStorageFull)
	}

	n := 0
	for ; len(value) > 0; n++ {
		end := min(cookieChunkSize, len(value))
		s.setCookie(w, s.chunkName(key, n), value[:end], int(s.maxAge/time.Second))
		value = value[end:]
	}
	// Expire chunks left over from a longer value.
	if r != nil {
		for i := n; i < maxCookieChunks; i++ {
			if _, err := r.Cookie(s.chunkName(key, i)); err == nil {
				s.setCookie(w, s.chunkName(key, i), "", -1)
			}
		}
	}
	return nil
}

func (s *CookieStorage) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionStorage keeps blobs in process memory keyed by CustomerId.
type SessionStorage struct {
	lru *expirable.LRU[string, []byte]
}

func NewSessionStorage(size int, ttl time.Duration) *SessionStorage {
	return &SessionStorage{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *SessionStorage) id(r *http.Request, key string) (string, error) {
	cid := CustomerID(r.Context())
	if cid == "" {
		return "", errors.New("session storage needs a customer id")
	}
	return cid + ":" + key, nil
}

func (s *SessionStorage) Load(r *http.Request, key string) ([]byte, error) {
	id, err := s.id(r, key)
	if err != nil {
		return nil, err
	}
	blob, _ := s.lru.Get(id)
	return blob, nil
}

func (s *SessionStorage) Save(_ http.ResponseWriter, r *http.Request, key string, blob []byte) error {
	id, err := s.id(r, key)
	if err != nil {
		return err
	}
	s.lru.Add(id, append([]byte(nil), blob...))
	return nil
}
