package db

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formkeeper/models"
)

// trackingStore counts every delegated call on top of the stub.
type trackingStore struct {
	stubStore
	calls atomic.Int32
}

func (s *trackingStore) GetAllConfigs() ([]models.SurveyConfig, error) {
	s.calls.Add(1)
	return []models.SurveyConfig{{ConfigID: "cfg-1", Title: "Onboarding"}}, nil
}

func (s *trackingStore) GetInstance(instanceID string) (*models.SurveyInstance, error) {
	s.calls.Add(1)
	return &models.SurveyInstance{InstanceID: instanceID}, nil
}

func (s *trackingStore) CreateSession(sess *models.Session) error {
	s.calls.Add(1)
	return nil
}

func TestProxyRejectsBeforeInitialization(t *testing.T) {
	store := &trackingStore{}
	init := NewInitializer(context.Background(), func(ctx context.Context) (Store, error) {
		return store, nil
	})
	proxy := NewProxy(init)

	// The proxy reference exists before Initialize; the gate runs per call.
	_, err := proxy.GetAllConfigs()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = proxy.GetInstance("inst-1")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = proxy.CreateSession(&models.Session{SessionID: "sess-1"})
	assert.ErrorIs(t, err, ErrNotInitialized)

	// No call reached the backend.
	assert.Equal(t, int32(0), store.calls.Load())
}

func TestProxyDelegatesAfterInitialization(t *testing.T) {
	store := &trackingStore{}
	init := NewInitializer(context.Background(), func(ctx context.Context) (Store, error) {
		return store, nil
	})
	proxy := NewProxy(init)

	require.NoError(t, init.Initialize(false))

	configs, err := proxy.GetAllConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "cfg-1", configs[0].ConfigID)

	inst, err := proxy.GetInstance("inst-9")
	require.NoError(t, err)
	assert.Equal(t, "inst-9", inst.InstanceID)

	assert.Equal(t, int32(2), store.calls.Load())
}

func TestProxyFollowsReestablishedConnection(t *testing.T) {
	first := &trackingStore{}
	second := &trackingStore{}
	stores := []*trackingStore{first, second}
	var dials int
	init := NewInitializer(context.Background(), func(ctx context.Context) (Store, error) {
		store := stores[dials]
		dials++
		return store, nil
	})
	proxy := NewProxy(init)

	require.NoError(t, init.Initialize(false))
	_, err := proxy.GetAllConfigs()
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.calls.Load())

	// Close and re-initialize: the proxy must delegate to the new
	// connection, not the closed one.
	require.NoError(t, init.Close())
	require.NoError(t, init.Initialize(false))

	_, err = proxy.GetAllConfigs()
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.calls.Load(), "closed store must not receive calls")
	assert.Equal(t, int32(1), second.calls.Load())
}

func TestProxyGateRunsOnEveryCall(t *testing.T) {
	store := &trackingStore{}
	init := NewInitializer(context.Background(), func(ctx context.Context) (Store, error) {
		return store, nil
	})
	proxy := NewProxy(init)

	require.NoError(t, init.Initialize(false))
	_, err := proxy.GetAllConfigs()
	require.NoError(t, err)

	// Closing the connection flips readiness off; the cached resolution must
	// not bypass the gate.
	require.NoError(t, init.Close())

	_, err = proxy.GetAllConfigs()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, int32(1), store.calls.Load())
}
