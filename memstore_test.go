package authflow

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryStore is a mutex-guarded Store used by the engine tests. Every method
// holds the lock for its whole body, which gives the same atomicity as the
// conditional statements of the SQL store.
type memoryStore struct {
	mu         sync.Mutex
	users      map[string]User
	tokens     map[string]Token // by hash
	codes      []VerificationCode
	configs    map[string]MFAConfig
	challenges []MFAChallenge
	methods    []MFAMethodInfo

	failTouch bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:   make(map[string]User),
		tokens:  make(map[string]Token),
		configs: make(map[string]MFAConfig),
		methods: []MFAMethodInfo{
			{ID: 1, Method: MFAMethodOTP, IsActive: true},
			{ID: 2, Method: MFAMethodEmail, IsActive: true},
		},
	}
}

func (m *memoryStore) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
		if existing.Username == u.Username {
			return ErrDuplicateUsername
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memoryStore) UserByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrRecordNotFound
	}
	return u, nil
}

func (m *memoryStore) UserByIdentifier(_ context.Context, identifier string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, identifier) || u.Username == identifier {
			return u, nil
		}
	}
	return User{}, ErrRecordNotFound
}

func (m *memoryStore) EmailTaken(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) UsernameTaken(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) updateUser(id string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrRecordNotFound
	}
	fn(&u)
	m.users[id] = u
	return nil
}

func (m *memoryStore) MarkUserVerified(_ context.Context, userID string, now time.Time) error {
	return m.updateUser(userID, func(u *User) { u.IsVerified = true; u.UpdatedAt = now })
}

func (m *memoryStore) MarkUserHasMFA(_ context.Context, userID string, now time.Time) error {
	return m.updateUser(userID, func(u *User) { u.HasMFA = true; u.UpdatedAt = now })
}

func (m *memoryStore) UpdatePasswordHash(_ context.Context, userID, hash string, now time.Time) error {
	return m.updateUser(userID, func(u *User) { u.PasswordHash = hash; u.UpdatedAt = now })
}

func (m *memoryStore) CreateToken(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.TokenHash] = t
	return nil
}

func (m *memoryStore) ValidToken(_ context.Context, tokenHash string, now time.Time) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok || !t.IsValid || !t.ExpiresAt.After(now) {
		return Token{}, ErrRecordNotFound
	}
	return t, nil
}

func (m *memoryStore) TouchToken(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTouch {
		return context.DeadlineExceeded
	}
	for h, t := range m.tokens {
		if t.ID == id {
			t.LastUsedAt = &now
			m.tokens[h] = t
		}
	}
	return nil
}

func (m *memoryStore) RevokeToken(_ context.Context, userID, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if ok && t.UserID == userID {
		t.IsValid = false
		m.tokens[tokenHash] = t
	}
	return nil
}

func (m *memoryStore) ReplaceCode(_ context.Context, c VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.codes[:0]
	for _, existing := range m.codes {
		if existing.UserID == c.UserID && existing.Purpose == c.Purpose && !existing.IsUsed {
			continue
		}
		kept = append(kept, existing)
	}
	m.codes = append(kept, c)
	return nil
}

func (m *memoryStore) ConsumeCode(_ context.Context, userID, code string, purposes []Purpose, now time.Time) (Purpose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := -1
	for i, c := range m.codes {
		if c.UserID != userID || c.Code != code || c.IsUsed || !c.ExpiresAt.After(now) || !hasPurpose(purposes, c.Purpose) {
			continue
		}
		if best < 0 || c.CreatedAt.After(m.codes[best].CreatedAt) {
			best = i
		}
	}
	if best < 0 {
		return "", ErrRecordNotFound
	}
	m.codes[best].IsUsed = true
	return m.codes[best].Purpose, nil
}

func hasPurpose(purposes []Purpose, p Purpose) bool {
	for _, candidate := range purposes {
		if candidate == p {
			return true
		}
	}
	return false
}

func (m *memoryStore) LatestPendingCode(_ context.Context, userID string) (VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := -1
	for i, c := range m.codes {
		if c.UserID != userID || c.IsUsed {
			continue
		}
		if best < 0 || !c.CreatedAt.Before(m.codes[best].CreatedAt) {
			best = i
		}
	}
	if best < 0 {
		return VerificationCode{}, ErrRecordNotFound
	}
	return m.codes[best], nil
}

func (m *memoryStore) DeleteCodes(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.codes[:0]
	for _, c := range m.codes {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	m.codes = kept
	return nil
}

func (m *memoryStore) MFAConfig(_ context.Context, userID string) (MFAConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[userID]
	if !ok {
		return MFAConfig{}, ErrRecordNotFound
	}
	cfg.BackupCodes = append([]string(nil), cfg.BackupCodes...)
	return cfg, nil
}

func (m *memoryStore) EnsureMFAConfig(_ context.Context, userID string, now time.Time) (MFAConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[userID]
	if !ok {
		cfg = MFAConfig{UserID: userID, CreatedAt: now, UpdatedAt: now}
		m.configs[userID] = cfg
	}
	cfg.BackupCodes = append([]string(nil), cfg.BackupCodes...)
	return cfg, nil
}

func (m *memoryStore) updateConfig(userID string, now time.Time, fn func(*MFAConfig) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[userID]
	if !ok {
		return false, ErrRecordNotFound
	}
	if !fn(&cfg) {
		return false, nil
	}
	cfg.Version++
	cfg.UpdatedAt = now
	m.configs[userID] = cfg
	return true, nil
}

func (m *memoryStore) SetOTPSecret(_ context.Context, userID, secret string, backupHashes []string, now time.Time) (bool, error) {
	return m.updateConfig(userID, now, func(cfg *MFAConfig) bool {
		if cfg.OTPSecret != "" {
			return false
		}
		cfg.OTPSecret = secret
		cfg.BackupCodes = append([]string(nil), backupHashes...)
		return true
	})
}

func (m *memoryStore) SetDefaultMethod(_ context.Context, userID string, method MFAMethod, now time.Time) error {
	_, err := m.updateConfig(userID, now, func(cfg *MFAConfig) bool {
		cfg.DefaultMethod = method
		return true
	})
	return err
}

func (m *memoryStore) EnableMFA(_ context.Context, userID string, now time.Time) error {
	_, err := m.updateConfig(userID, now, func(cfg *MFAConfig) bool {
		cfg.IsEnabled = true
		return true
	})
	return err
}

func (m *memoryStore) ReplaceBackupCodes(_ context.Context, userID string, hashes []string, expectedVersion int64, now time.Time) (bool, error) {
	return m.updateConfig(userID, now, func(cfg *MFAConfig) bool {
		if cfg.Version != expectedVersion {
			return false
		}
		cfg.BackupCodes = append([]string(nil), hashes...)
		return true
	})
}

func (m *memoryStore) MFAMethods(_ context.Context, activeOnly bool) ([]MFAMethodInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MFAMethodInfo, 0, len(m.methods))
	for _, method := range m.methods {
		if activeOnly && !method.IsActive {
			continue
		}
		out = append(out, method)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) ReplaceMFAChallenge(_ context.Context, ch MFAChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.challenges[:0]
	for _, existing := range m.challenges {
		if existing.UserID == ch.UserID && existing.Method == ch.Method && !existing.IsVerified {
			continue
		}
		kept = append(kept, existing)
	}
	m.challenges = append(kept, ch)
	return nil
}

func (m *memoryStore) VerifyMFAChallenge(_ context.Context, userID string, method MFAMethod, code, sessionKey string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ch := range m.challenges {
		if ch.UserID == userID && ch.Method == method && ch.Code == code && ch.SessionKey == sessionKey &&
			!ch.IsVerified && ch.ExpiresAt.After(now) {
			m.challenges[i].IsVerified = true
			m.challenges[i].VerifiedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) setMethodActive(method MFAMethod, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.methods {
		if m.methods[i].Method == method {
			m.methods[i].IsActive = active
		}
	}
}

func (m *memoryStore) pendingCodes(userID string) []VerificationCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []VerificationCode
	for _, c := range m.codes {
		if c.UserID == userID && !c.IsUsed {
			out = append(out, c)
		}
	}
	return out
}

func (m *memoryStore) codeCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.codes {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memoryStore) tokenRecord(raw string) (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hashToken(raw)]
	return t, ok
}

var _ Store = (*memoryStore)(nil)
