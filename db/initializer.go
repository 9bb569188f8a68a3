package db

import (
	"context"
	"log"
	"sync"
	"time"

	"formkeeper/config"
)

// ConnectFunc establishes the backend connection and returns the live store.
// The default is FirestoreConnect; tests inject their own.
type ConnectFunc func(ctx context.Context) (Store, error)

// FirestoreConnect returns the production ConnectFunc: validate the backend
// configuration, then dial Firestore.
func FirestoreConnect(cfg *config.Config) ConnectFunc {
	return func(ctx context.Context) (Store, error) {
		if err := cfg.Backend.Validate(); err != nil {
			return nil, ConfigError(err)
		}
		return NewFirestoreDB(ctx, cfg.Backend.ProjectID, cfg.Backend.CredentialsPath, cfg.Backend.ProbeTimeout)
	}
}

// initAttempt is one shared in-flight initialization. Waiters block on done
// and then read err.
type initAttempt struct {
	done chan struct{}
	err  error
}

// Initializer guarantees exactly-once establishment of the shared backend
// connection. Concurrent callers observe the shared in-flight attempt; a
// cached failure is either re-raised or cleared for a fresh coordinated
// retry, so at most one physical connection sequence runs at a time.
//
// Construct one Initializer in the composition root and pass it by
// reference; each test builds its own instance.
type Initializer struct {
	mu          sync.Mutex
	ctx         context.Context
	connect     ConnectFunc
	store       Store
	initialized bool
	attempt     *initAttempt
	lastErr     error

	sleep func(time.Duration) // test seam for the retry backoff
}

// NewInitializer creates an initializer bound to the given connect function.
func NewInitializer(ctx context.Context, connect ConnectFunc) *Initializer {
	return &Initializer{
		ctx:     ctx,
		connect: connect,
		sleep:   time.Sleep,
	}
}

// Initialize establishes the backend connection if it is not established
// yet. It is an idempotent no-op once initialization has succeeded.
//
// When an attempt is already in flight the caller awaits its outcome. If
// that shared attempt fails and retryOnFailure is true, the cached failure
// is cleared and a fresh attempt starts; with retryOnFailure false the
// cached error is re-raised without touching the backend.
func (i *Initializer) Initialize(retryOnFailure bool) error {
	for {
		i.mu.Lock()
		if i.initialized {
			i.mu.Unlock()
			return nil
		}
		if i.lastErr != nil {
			if !retryOnFailure {
				err := i.lastErr
				i.mu.Unlock()
				return err
			}
			i.lastErr = nil
		}
		if att := i.attempt; att != nil {
			i.mu.Unlock()
			<-att.done
			if att.err == nil {
				return nil
			}
			if !retryOnFailure {
				return att.err
			}
			// Shared attempt failed; loop to start a fresh one so a stuck
			// failed singleton cannot block all future callers.
			continue
		}

		att := &initAttempt{done: make(chan struct{})}
		i.attempt = att
		i.mu.Unlock()

		store, err := i.establish()

		i.mu.Lock()
		i.attempt = nil
		if err != nil {
			i.lastErr = err
		} else {
			i.store = store
			i.initialized = true
			i.lastErr = nil
		}
		i.mu.Unlock()

		att.err = err
		close(att.done)
		return err
	}
}

// establish runs one full connection sequence: connect (which validates the
// configuration) and probe. Failures come back classified.
func (i *Initializer) establish() (Store, error) {
	store, err := i.connect(i.ctx)
	if err != nil {
		return nil, Classify(err)
	}
	if err := store.Ping(); err != nil {
		store.Close()
		return nil, Classify(err)
	}
	return store, nil
}

// RetryInitialization makes up to maxAttempts initialization attempts with
// linear backoff (baseDelay * attempt between tries). Non-retryable failures
// abort immediately without consuming remaining attempts.
func (i *Initializer) RetryInitialization(maxAttempts int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		i.clearFailure()
		err := i.Initialize(false)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			log.Printf("⚠️  Backend initialization attempt %d/%d failed: %v (retrying in %v)", attempt, maxAttempts, err, delay)
			i.sleep(delay)
		}
	}
	return lastErr
}

// Ready reports whether initialization has succeeded.
func (i *Initializer) Ready() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.initialized
}

// Store returns the established backend helper, or a readiness error when
// initialization has not succeeded or the helper is unexpectedly absent.
func (i *Initializer) Store() (Store, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.initialized {
		return nil, ErrNotInitialized
	}
	if i.store == nil {
		return nil, ErrHelpersUnavailable
	}
	return i.store, nil
}

// LastError returns the cached failure from the most recent attempt, if any.
func (i *Initializer) LastError() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

func (i *Initializer) clearFailure() {
	i.mu.Lock()
	i.lastErr = nil
	i.mu.Unlock()
}

// Close shuts down the established connection, if any.
func (i *Initializer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.store == nil {
		return nil
	}
	err := i.store.Close()
	i.store = nil
	i.initialized = false
	return err
}
