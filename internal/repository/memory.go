package repository

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/otklabs/otk-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository = (*MemoryUserRepo)(nil)
	_ OTPRepository  = (*MemoryOTPRepo)(nil)
)

type storeKey struct {
	ns    string
	email string
}

// MemoryUserRepo keeps accounts in a process-local map. All state is lost on
// restart; production deployments point DATABASE_URL at Postgres instead.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[storeKey]domain.User
}

// NewMemoryUserRepo constructs an empty in-memory user store.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[storeKey]domain.User)}
}

func (r *MemoryUserRepo) GetByEmail(ctx context.Context, ns, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[storeKey{ns: ns, email: email}]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryUserRepo) ExistsByEmail(ctx context.Context, ns, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[storeKey{ns: ns, email: email}]
	return ok, nil
}

// Create rejects duplicates under the same lock that performs the write, so
// two concurrent registrations for one email cannot both succeed.
func (r *MemoryUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	key := storeKey{ns: user.Namespace, email: user.Email}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[key]; ok {
		return domain.User{}, domain.ErrUserExists
	}
	r.users[key] = user
	return user, nil
}

func (r *MemoryUserRepo) Update(ctx context.Context, user domain.User) error {
	key := storeKey{ns: user.Namespace, email: user.Email}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[key]; !ok {
		return domain.ErrUserNotFound
	}
	r.users[key] = user
	return nil
}

// MemoryOTPRepo stores pending verification codes in memory. A janitor
// goroutine evicts expired entries so long-running processes stay bounded.
type MemoryOTPRepo struct {
	mu      sync.RWMutex
	entries map[storeKey]domain.OTPEntry
	done    chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// NewMemoryOTPRepo constructs the store and starts the eviction janitor.
// Stop must be called to release the janitor goroutine.
func NewMemoryOTPRepo(sweepInterval time.Duration, logger *zap.Logger) *MemoryOTPRepo {
	if logger == nil {
		logger = zap.L()
	}
	r := &MemoryOTPRepo{
		entries: make(map[storeKey]domain.OTPEntry),
		done:    make(chan struct{}),
		logger:  logger,
	}
	if sweepInterval > 0 {
		go r.janitor(sweepInterval)
	}
	return r
}

func (r *MemoryOTPRepo) Save(ctx context.Context, ns string, entry domain.OTPEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[storeKey{ns: ns, email: entry.Email}] = entry
	return nil
}

func (r *MemoryOTPRepo) Get(ctx context.Context, ns, email string) (domain.OTPEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[storeKey{ns: ns, email: email}]
	if !ok {
		return domain.OTPEntry{}, domain.ErrOTPNotFound
	}
	return entry, nil
}

func (r *MemoryOTPRepo) Delete(ctx context.Context, ns, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, storeKey{ns: ns, email: email})
	return nil
}

// Stop terminates the eviction janitor.
func (r *MemoryOTPRepo) Stop() {
	r.once.Do(func() { close(r.done) })
}

func (r *MemoryOTPRepo) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *MemoryOTPRepo) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for key, entry := range r.entries {
		if entry.Expired(now) {
			delete(r.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Debug("evicted expired otp entries", zap.Int("count", evicted))
	}
}
