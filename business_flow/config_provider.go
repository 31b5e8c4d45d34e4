package businessflow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/repository"
	"github.com/coracaovalente/instituto-integration/utils"
)

// DefaultConfigCacheTTL bounds how stale the active configuration may be
const DefaultConfigCacheTTL = 5 * time.Minute

// CredentialDecrypter opens the sealed credentials stored with a configuration
type CredentialDecrypter interface {
	Decrypt(sealed string) (models.Credentials, error)
}

// ConfigProvider serves the active partner configuration with decrypted credentials
type ConfigProvider interface {
	Active(ctx context.Context) (*models.APIConfig, error)
	Invalidate()
}

// CachedConfigProvider keeps the last active configuration for a TTL
type CachedConfigProvider struct {
	repo    repository.APIConfigRepository
	cipher  CredentialDecrypter
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger
	mu      sync.Mutex
	cached  *models.APIConfig
	fetched time.Time
}

func NewCachedConfigProvider(repo repository.APIConfigRepository, cipher CredentialDecrypter, ttl time.Duration, logger *log.Logger) *CachedConfigProvider {
	if ttl <= 0 {
		ttl = DefaultConfigCacheTTL
	}
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &CachedConfigProvider{repo: repo, cipher: cipher, ttl: ttl, now: utils.UTCNow, logger: logger}
}

// Active returns nil without error when no active configuration exists.
// Undecryptable credentials are logged and replaced by empty ones.
func (p *CachedConfigProvider) Active(ctx context.Context) (*models.APIConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.cached != nil && now.Sub(p.fetched) < p.ttl {
		configCacheLookups.WithLabelValues("hit").Inc()
		cfg := *p.cached
		return &cfg, nil
	}
	configCacheLookups.WithLabelValues("miss").Inc()

	cfg, err := p.repo.Active(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		p.cached = nil
		return nil, nil
	}

	if p.cipher != nil && cfg.EncryptedCredentials != "" {
		creds, err := p.cipher.Decrypt(cfg.EncryptedCredentials)
		if err != nil {
			p.logger.Printf("config %s: credentials could not be decrypted: %v", cfg.ID, err)
			creds = models.Credentials{}
		}
		cfg.Credentials = creds
	}

	p.cached = cfg
	p.fetched = now
	out := *cfg
	return &out, nil
}

// Invalidate drops the cached configuration so the next call reloads it
func (p *CachedConfigProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
}
