package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrEthical07/authflow/navigation"
	"github.com/MrEthical07/authflow/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type phoneCall struct {
	phone string
	token string
}

// mockIdentityService is a hand-rolled IdentityService double.
type mockIdentityService struct {
	mu sync.Mutex

	listeners    map[int]func(*Principal)
	nextListener int
	unsubscribed int

	tokens     map[string]string
	tokenErr   error
	tokenCalls int
	tokenGate  chan struct{}

	resetErr    error
	resetEmails []string

	phoneErr   error
	phoneCalls []phoneCall
	nextVID    int
}

func newMockIdentityService() *mockIdentityService {
	return &mockIdentityService{
		listeners: map[int]func(*Principal){},
		tokens:    map[string]string{},
	}
}

func (m *mockIdentityService) Subscribe(fn func(*Principal)) func() {
	m.mu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.listeners[id]; ok {
			delete(m.listeners, id)
			m.unsubscribed++
		}
	}
}

// emit delivers p to every listener, like the service's auth-state stream.
func (m *mockIdentityService) emit(p *Principal) {
	m.mu.Lock()
	fns := make([]func(*Principal), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (m *mockIdentityService) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *mockIdentityService) IDToken(ctx context.Context, p *Principal) (string, error) {
	m.mu.Lock()
	m.tokenCalls++
	gate := m.tokenGate
	err := m.tokenErr
	tok, ok := m.tokens[p.UID]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if !ok {
		tok = "token-" + p.UID
	}
	return tok, nil
}

func (m *mockIdentityService) SendPasswordResetEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetEmails = append(m.resetEmails, email)
	return m.resetErr
}

func (m *mockIdentityService) SendPhoneVerificationCode(_ context.Context, phone, challengeToken string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phoneCalls = append(m.phoneCalls, phoneCall{phone: phone, token: challengeToken})
	if m.phoneErr != nil {
		return "", m.phoneErr
	}
	m.nextVID++
	return fmt.Sprintf("vid-%d", m.nextVID), nil
}

func (m *mockIdentityService) outboundCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resetEmails) + len(m.phoneCalls)
}

// flakyKV fails writes or removals on demand.
type flakyKV struct {
	mu         sync.Mutex
	data       map[string]string
	failSet    bool
	failRemove bool
}

func newFlakyKV() *flakyKV {
	return &flakyKV{data: map[string]string{}}
}

var errFlaky = errors.New("storage offline")

func (f *flakyKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errFlaky
	}
	f.data[key] = value
	return nil
}

func (f *flakyKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (f *flakyKV) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemove {
		return errFlaky
	}
	delete(f.data, key)
	return nil
}

func (f *flakyKV) setFailures(set, remove bool) {
	f.mu.Lock()
	f.failSet = set
	f.failRemove = remove
	f.mu.Unlock()
}

func (f *flakyKV) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

type testClientOptions struct {
	cfg        *Config
	redis      *redis.Client
	kv         storage.KV
	challenges ChallengeFactory
	sink       AuditSink
	onError    ErrorHandler
}

func buildTestClient(t *testing.T, svc *mockIdentityService, opts testClientOptions) (*Client, *navigation.Stack) {
	t.Helper()

	cfg := DefaultConfig()
	if opts.cfg != nil {
		cfg = *opts.cfg
	}
	nav := navigation.NewStack(ScreenLogin, ScreenVerifyOTP)

	b := New().
		WithConfig(cfg).
		WithIdentityService(svc).
		WithNavigator(nav)
	if opts.redis != nil {
		b = b.WithRedis(opts.redis)
	}
	if opts.kv != nil {
		b = b.WithStorage(opts.kv)
	}
	if opts.challenges != nil {
		b = b.WithChallengeFactory(opts.challenges)
	}
	if opts.sink != nil {
		b = b.WithAuditSink(opts.sink)
	}
	if opts.onError != nil {
		b = b.WithErrorHandler(opts.onError)
	}

	client, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client, nav
}
