// Package session caches authenticated sessions keyed by account identity,
// scores session health from success/failure history, and decides when a
// session must be refreshed or rotated.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

const (
	// DefaultMinHealthThreshold is the health score below which a cached
	// session is refreshed instead of reused.
	DefaultMinHealthThreshold = 50

	// DefaultRefreshWindow is the maximum age of a cached session before a
	// fresh authentication is forced.
	DefaultRefreshWindow = 24 * time.Hour

	// DefaultRotationInterval is how often sessions are proactively rotated
	// regardless of health, to limit long-lived-session detection risk.
	DefaultRotationInterval = 1800 * time.Second

	// healthScoreMax is the score assigned to a brand-new session.
	healthScoreMax = 100

	// credentialFileMode restricts persisted credential blobs to the owner.
	credentialFileMode = 0o600
)

// Session is an authenticated session for one account.
type Session struct {
	AccountKey string
	// Credentials is the opaque blob produced by the external credential
	// flow (serialized cookies, tokens). The manager never inspects it.
	Credentials []byte
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

// Authenticator is the external credential flow. Implementations perform the
// actual login against the target and return an opaque credential blob.
type Authenticator interface {
	Authenticate(ctx context.Context, accountKey string) ([]byte, error)
}

// Config holds configuration for the session manager.
type Config struct {
	// MinHealthThreshold is the minimum health score for cache reuse.
	MinHealthThreshold int
	// RefreshWindow is the maximum session age before re-authentication.
	RefreshWindow time.Duration
	// RotationInterval triggers proactive rotation independent of health.
	RotationInterval time.Duration
	// CredentialDir, when non-empty, persists credential blobs to disk so a
	// restart can reuse fresh sessions.
	CredentialDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinHealthThreshold: DefaultMinHealthThreshold,
		RefreshWindow:      DefaultRefreshWindow,
		RotationInterval:   DefaultRotationInterval,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MinHealthThreshold < 0 || c.MinHealthThreshold > healthScoreMax {
		return fmt.Errorf("min health threshold must be in [0,100]")
	}
	if c.RefreshWindow <= 0 {
		return fmt.Errorf("refresh window must be positive")
	}
	if c.RotationInterval <= 0 {
		return fmt.Errorf("rotation interval must be positive")
	}
	return nil
}

// healthStats tracks success/failure counts for one account.
type healthStats struct {
	success int
	failure int
}

// score derives the 0-100 health score. Accounts with no recorded events
// start with a perfect score.
func (h healthStats) score() int {
	total := h.success + h.failure
	if total == 0 {
		return healthScoreMax
	}
	return h.success * healthScoreMax / total
}

// Manager owns all Session state. Per-account health counters are updated
// atomically under the manager's lock.
type Manager struct {
	mu           sync.Mutex
	config       Config
	auth         Authenticator
	sessions     map[string]*Session
	health       map[string]healthStats
	lastRotation time.Time
	log          logger.Interface

	// now is swappable in tests.
	now func() time.Time
}

// NewManager creates a session manager backed by the given authenticator.
func NewManager(cfg Config, auth Authenticator, log logger.Interface) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := &Manager{
		config:   cfg,
		auth:     auth,
		sessions: make(map[string]*Session),
		health:   make(map[string]healthStats),
		log:      log,
		now:      time.Now,
	}
	m.lastRotation = m.now()

	if cfg.CredentialDir != "" {
		if err := os.MkdirAll(cfg.CredentialDir, 0o755); err != nil {
			return nil, fmt.Errorf("create credential dir: %w", err)
		}
	}

	return m, nil
}

// GetSession returns a usable session for the account. A cached session is
// reused when its health score meets the threshold and it is younger than
// the refresh window; otherwise a fresh authentication is performed through
// the external credential flow and cached with health reset.
func (m *Manager) GetSession(ctx context.Context, accountKey string) (*Session, error) {
	if accountKey == "" {
		return nil, domain.ErrNoCredentials
	}

	m.mu.Lock()
	now := m.now()
	cached, ok := m.sessions[accountKey]
	if ok && m.reusable(cached, now) {
		cached.LastUsedAt = now
		m.mu.Unlock()
		return cached, nil
	}
	m.mu.Unlock()

	if ok {
		// The cached session failed the health or age check. The persisted
		// blob backs that same session, so drop it and authenticate fresh.
		m.removePersisted(accountKey)
		return m.authenticate(ctx, accountKey)
	}

	// No in-memory session: a persisted blob from a previous run counts as
	// fresh enough if the file is younger than the refresh window.
	if sess := m.loadPersisted(accountKey); sess != nil {
		m.cache(sess)
		return sess, nil
	}

	return m.authenticate(ctx, accountKey)
}

// reusable reports whether a cached session may be handed out again.
// Caller must hold the lock.
func (m *Manager) reusable(s *Session, now time.Time) bool {
	if now.Sub(s.CreatedAt) >= m.config.RefreshWindow {
		return false
	}
	return m.health[s.AccountKey].score() >= m.config.MinHealthThreshold
}

// authenticate runs the external credential flow and caches the result.
func (m *Manager) authenticate(ctx context.Context, accountKey string) (*Session, error) {
	if m.auth == nil {
		return nil, domain.ErrNoCredentials
	}

	blob, err := m.auth.Authenticate(ctx, accountKey)
	if err != nil {
		m.MarkFailure(accountKey)
		return nil, fmt.Errorf("%w: %s", domain.ErrAuthenticationFailed, err)
	}

	now := m.now()
	sess := &Session{
		AccountKey:  accountKey,
		Credentials: blob,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	m.cache(sess)
	m.persist(sess)

	m.log.Info("session authenticated", "account", accountKey)
	return sess, nil
}

// cache stores the session and resets its health history.
func (m *Manager) cache(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.AccountKey] = sess
	m.health[sess.AccountKey] = healthStats{}
}

// MarkSuccess records a successful use of the account's session.
func (m *Manager) MarkSuccess(accountKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.health[accountKey]
	h.success++
	m.health[accountKey] = h
}

// MarkFailure records a failed use of the account's session.
func (m *Manager) MarkFailure(accountKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.health[accountKey]
	h.failure++
	m.health[accountKey] = h
}

// HealthScore returns the account's current 0-100 health score.
func (m *Manager) HealthScore(accountKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health[accountKey].score()
}

// ShouldRotate reports whether the rotation interval has elapsed since the
// last rotation. When true, the caller is expected to invalidate cached
// sessions; rotation happens regardless of current health.
func (m *Manager) ShouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastRotation) > m.config.RotationInterval
}

// Rotate invalidates all cached sessions and restarts the rotation clock.
func (m *Manager) Rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := len(m.sessions)
	m.sessions = make(map[string]*Session)
	m.lastRotation = m.now()

	m.log.Info("sessions rotated", "evicted", count)
}

// Invalidate evicts the account's cached session and removes its persisted
// credential blob.
func (m *Manager) Invalidate(accountKey string) {
	m.mu.Lock()
	delete(m.sessions, accountKey)
	m.mu.Unlock()

	m.removePersisted(accountKey)
}

// removePersisted deletes the account's credential blob, if any.
func (m *Manager) removePersisted(accountKey string) {
	if m.config.CredentialDir == "" {
		return
	}
	_ = os.Remove(m.credentialFile(accountKey))
}

// AccountHealth is a point-in-time health view for one account.
type AccountHealth struct {
	AccountKey string    `json:"account_key"`
	Score      int       `json:"score"`
	Cached     bool      `json:"cached"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// Status returns health snapshots for all known accounts.
func (m *Manager) Status() []AccountHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(m.sessions)+len(m.health))
	var out []AccountHealth

	for key, sess := range m.sessions {
		seen[key] = true
		out = append(out, AccountHealth{
			AccountKey: key,
			Score:      m.health[key].score(),
			Cached:     true,
			LastUsedAt: sess.LastUsedAt,
		})
	}
	for key := range m.health {
		if !seen[key] {
			out = append(out, AccountHealth{
				AccountKey: key,
				Score:      m.health[key].score(),
			})
		}
	}

	return out
}

// credentialFile returns the on-disk path for an account's credential blob.
func (m *Manager) credentialFile(accountKey string) string {
	safe := strings.NewReplacer("@", "_at_", ".", "_dot_", "/", "_").Replace(accountKey)
	return filepath.Join(m.config.CredentialDir, "session_"+safe+".blob")
}

// persist writes the credential blob to disk when persistence is enabled.
func (m *Manager) persist(sess *Session) {
	if m.config.CredentialDir == "" {
		return
	}

	path := m.credentialFile(sess.AccountKey)
	if err := os.WriteFile(path, sess.Credentials, credentialFileMode); err != nil {
		m.log.Error("failed to persist credentials",
			"account", sess.AccountKey,
			"error", err.Error(),
		)
	}
}

// loadPersisted loads a persisted credential blob if it is younger than the
// refresh window.
func (m *Manager) loadPersisted(accountKey string) *Session {
	if m.config.CredentialDir == "" {
		return nil
	}

	path := m.credentialFile(accountKey)
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if m.now().Sub(info.ModTime()) >= m.config.RefreshWindow {
		return nil
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	now := m.now()
	return &Session{
		AccountKey:  accountKey,
		Credentials: blob,
		CreatedAt:   info.ModTime(),
		LastUsedAt:  now,
	}
}
