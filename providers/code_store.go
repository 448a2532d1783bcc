package providers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
)

const (
	codeDigits         = 6
	defaultCodeTTL     = 5 * time.Minute
	maxCodeAttempts    = 5
	verificationPrefix = "sgw:code"
)

// CodeStore holds one-time verification codes per (tenant, phone).
type CodeStore interface {
	// Issue creates a new code, replacing any outstanding one.
	Issue(ctx context.Context, tenantID, phone string) (string, error)
	// Consume checks code and deletes it on success. A wrong or unknown code
	// yields ErrInvalidCredentials; too many wrong guesses discard the code.
	Consume(ctx context.Context, tenantID, phone, code string) error
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type memoryCode struct {
	code      string
	expiresAt time.Time
	attempts  int
}

// MemoryCodeStore keeps codes in process memory.
type MemoryCodeStore struct {
	codes   map[string]*memoryCode
	ttl     time.Duration
	nowFunc func() time.Time
	lock    sync.Mutex
}

func NewMemoryCodeStore(ttl time.Duration, now func() time.Time) *MemoryCodeStore {
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCodeStore{
		codes:   make(map[string]*memoryCode),
		ttl:     ttl,
		nowFunc: now,
	}
}

func (s *MemoryCodeStore) Issue(_ context.Context, tenantID, phone string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.codes[tenantID+":"+phone] = &memoryCode{code: code, expiresAt: s.nowFunc().Add(s.ttl)}
	return code, nil
}

func (s *MemoryCodeStore) Consume(_ context.Context, tenantID, phone, code string) error {
	key := tenantID + ":" + phone
	s.lock.Lock()
	defer s.lock.Unlock()

	stored, ok := s.codes[key]
	if !ok {
		return errors.ErrInvalidCredentials
	}
	if !s.nowFunc().Before(stored.expiresAt) {
		delete(s.codes, key)
		return errors.ErrInvalidCredentials
	}
	if !codesEqual(stored.code, code) {
		stored.attempts++
		if stored.attempts >= maxCodeAttempts {
			delete(s.codes, key)
		}
		return errors.ErrInvalidCredentials
	}
	delete(s.codes, key)
	return nil
}
