package authz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGrantSource struct {
	mu        sync.Mutex
	snapshots map[string]*GrantSnapshot
	calls     atomic.Int64
	delay     time.Duration
	err       error
}

func newStubGrantSource() *stubGrantSource {
	return &stubGrantSource{snapshots: make(map[string]*GrantSnapshot)}
}

func (s *stubGrantSource) set(principalID int64, agent Agent, snapshot *GrantSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[fmt.Sprintf("%d:%s", principalID, agent)] = snapshot
}

func (s *stubGrantSource) GrantSnapshot(ctx context.Context, principalID int64, agent Agent) (*GrantSnapshot, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[fmt.Sprintf("%d:%s", principalID, agent)], nil
}

type stubDenialSink struct {
	events chan DeniedEvent
}

func newStubDenialSink() *stubDenialSink {
	return &stubDenialSink{events: make(chan DeniedEvent, 64)}
}

func (s *stubDenialSink) RecordDenied(ctx context.Context, event DeniedEvent) {
	s.events <- event
}

func newTestGateway(store GrantSource, opts ...func(*GatewayConfig)) *Gateway {
	cfg := GatewayConfig{
		Store:        store,
		Cache:        NewMemoryCache(time.Minute),
		CheckTimeout: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewGateway(cfg)
}

func TestCheckStandardWithoutGrantDenied(t *testing.T) {
	store := newStubGrantSource()
	g := newTestGateway(store)

	standard := Principal{ID: 10, Role: RoleStandard, Active: true}
	got := g.Check(context.Background(), standard, AgentReporting, OpRead)

	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonNoGrant, got.Reason)
}

func TestCheckGrantScopesOperations(t *testing.T) {
	store := newStubGrantSource()
	store.set(11, AgentRecordManagement, &GrantSnapshot{Capabilities: CapabilitySet{Read: true}})
	g := newTestGateway(store)

	standard := Principal{ID: 11, Role: RoleStandard, Active: true}

	read := g.Check(context.Background(), standard, AgentRecordManagement, OpRead)
	assert.True(t, read.Allowed)
	assert.Equal(t, ReasonGrant, read.Reason)

	del := g.Check(context.Background(), standard, AgentRecordManagement, OpDelete)
	assert.False(t, del.Allowed)
	assert.Equal(t, ReasonNotPermitted, del.Reason)

	// Same agent, different capability: one store read served both checks.
	assert.Equal(t, int64(1), store.calls.Load())
}

func TestCheckCachesResolutions(t *testing.T) {
	store := newStubGrantSource()
	store.set(12, AgentDocumentProcessing, &GrantSnapshot{Capabilities: CapabilitySet{Read: true}})
	g := newTestGateway(store)

	standard := Principal{ID: 12, Role: RoleStandard, Active: true}
	for range 5 {
		got := g.Check(context.Background(), standard, AgentDocumentProcessing, OpRead)
		assert.True(t, got.Allowed)
	}
	assert.Equal(t, int64(1), store.calls.Load())
}

func TestInvalidateForcesFreshResolution(t *testing.T) {
	store := newStubGrantSource()
	store.set(13, AgentRecordManagement, &GrantSnapshot{Capabilities: CapabilitySet{Read: true}})
	g := newTestGateway(store)

	standard := Principal{ID: 13, Role: RoleStandard, Active: true}
	ctx := context.Background()

	first := g.Check(ctx, standard, AgentRecordManagement, OpUpdate)
	assert.False(t, first.Allowed)

	store.set(13, AgentRecordManagement, &GrantSnapshot{Capabilities: CapabilitySet{Read: true, Update: true}})
	require.NoError(t, g.InvalidateFor(ctx, 13, AgentRecordManagement))

	second := g.Check(ctx, standard, AgentRecordManagement, OpUpdate)
	assert.True(t, second.Allowed)
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestCheckSystemRoleNeverTouchesStore(t *testing.T) {
	store := newStubGrantSource()
	store.err = errors.New("store must not be called")
	g := newTestGateway(store)

	system := Principal{ID: 1, Role: RoleElevatedSystem, Active: true}
	got := g.Check(context.Background(), system, AgentMediaCapture, OpDelete)

	assert.True(t, got.Allowed)
	assert.Equal(t, ReasonRoleBypass, got.Reason)
	assert.Equal(t, int64(0), store.calls.Load())
}

func TestCheckInactivePrincipalDenied(t *testing.T) {
	store := newStubGrantSource()
	store.set(14, AgentReporting, &GrantSnapshot{Capabilities: FullAccess})
	g := newTestGateway(store)

	inactive := Principal{ID: 14, Role: RoleElevatedOrg, Active: false}
	got := g.Check(context.Background(), inactive, AgentReporting, OpRead)

	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonInactive, got.Reason)
	assert.Equal(t, int64(0), store.calls.Load())
}

func TestCheckSlowStoreFailsClosed(t *testing.T) {
	store := newStubGrantSource()
	store.set(15, AgentReporting, &GrantSnapshot{Capabilities: FullAccess})
	store.delay = 100 * time.Millisecond
	g := newTestGateway(store, func(cfg *GatewayConfig) {
		cfg.CheckTimeout = 10 * time.Millisecond
	})

	standard := Principal{ID: 15, Role: RoleStandard, Active: true}
	start := time.Now()
	got := g.Check(context.Background(), standard, AgentReporting, OpRead)

	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonTimeout, got.Reason)
	assert.Less(t, time.Since(start), 80*time.Millisecond, "timeout deny must not wait for the store")
}

func TestCheckStoreErrorFailsClosed(t *testing.T) {
	store := newStubGrantSource()
	store.err = errors.New("connection refused")
	g := newTestGateway(store)

	standard := Principal{ID: 16, Role: RoleStandard, Active: true}
	got := g.Check(context.Background(), standard, AgentRecordManagement, OpRead)

	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonTimeout, got.Reason)
}

func TestCheckParallelAfterFreshGrant(t *testing.T) {
	store := newStubGrantSource()
	store.set(17, AgentDocumentProcessing, &GrantSnapshot{Capabilities: CapabilitySet{Read: true}})
	g := newTestGateway(store)

	standard := Principal{ID: 17, Role: RoleStandard, Active: true}
	ctx := context.Background()

	var wg sync.WaitGroup
	decisions := make([]Decision, 50)
	for i := range decisions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decisions[i] = g.Check(ctx, standard, AgentDocumentProcessing, OpRead)
		}()
	}
	wg.Wait()

	for i, d := range decisions {
		assert.True(t, d.Allowed, "check %d", i)
	}
}

func TestDenialSampling(t *testing.T) {
	store := newStubGrantSource()
	sink := newStubDenialSink()
	g := newTestGateway(store, func(cfg *GatewayConfig) {
		cfg.Denials = sink
		cfg.SampleRate = 1.0
	})

	standard := Principal{ID: 18, Role: RoleStandard, Active: true}
	got := g.Check(context.Background(), standard, AgentReporting, OpDelete)
	require.False(t, got.Allowed)

	select {
	case event := <-sink.events:
		assert.Equal(t, int64(18), event.PrincipalID)
		assert.Equal(t, AgentReporting, event.Agent)
		assert.Equal(t, OpDelete, event.Operation)
		assert.Equal(t, ReasonNoGrant, event.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected a sampled denial event")
	}
}

func TestDenialSamplingSkipsTimeouts(t *testing.T) {
	store := newStubGrantSource()
	store.delay = 100 * time.Millisecond
	sink := newStubDenialSink()
	g := newTestGateway(store, func(cfg *GatewayConfig) {
		cfg.CheckTimeout = 10 * time.Millisecond
		cfg.Denials = sink
		cfg.SampleRate = 1.0
	})

	standard := Principal{ID: 19, Role: RoleStandard, Active: true}
	got := g.Check(context.Background(), standard, AgentReporting, OpRead)
	require.Equal(t, ReasonTimeout, got.Reason)

	select {
	case <-sink.events:
		t.Fatal("timeout denials must not enter the audit stream")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDenialSamplingDisabledAtZero(t *testing.T) {
	store := newStubGrantSource()
	sink := newStubDenialSink()
	g := newTestGateway(store, func(cfg *GatewayConfig) {
		cfg.Denials = sink
		cfg.SampleRate = 0
	})

	standard := Principal{ID: 20, Role: RoleStandard, Active: true}
	g.Check(context.Background(), standard, AgentReporting, OpRead)

	select {
	case <-sink.events:
		t.Fatal("sample rate zero must suppress all events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCheckAll(t *testing.T) {
	store := newStubGrantSource()
	store.set(21, AgentRecordManagement, &GrantSnapshot{Capabilities: CapabilitySet{Create: true, Read: true}})
	sink := newStubDenialSink()
	g := newTestGateway(store, func(cfg *GatewayConfig) {
		cfg.Denials = sink
		cfg.SampleRate = 1.0
	})

	standard := Principal{ID: 21, Role: RoleStandard, Active: true}
	decisions := g.CheckAll(context.Background(), standard, []AccessQuery{
		{Agent: AgentRecordManagement, Operation: OpCreate},
		{Agent: AgentRecordManagement, Operation: OpDelete},
		{Agent: AgentReporting, Operation: OpRead},
	})

	require.Len(t, decisions, 3)
	assert.True(t, decisions[0].Allowed)
	assert.False(t, decisions[1].Allowed)
	assert.Equal(t, ReasonNotPermitted, decisions[1].Reason)
	assert.False(t, decisions[2].Allowed)
	assert.Equal(t, ReasonNoGrant, decisions[2].Reason)

	select {
	case <-sink.events:
		t.Fatal("pre-flight denials must not be sampled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoleDemotionResolvesFresh(t *testing.T) {
	store := newStubGrantSource()
	g := newTestGateway(store)
	ctx := context.Background()

	asOrgAdmin := Principal{ID: 23, Role: RoleElevatedOrg, Active: true}
	first := g.Check(ctx, asOrgAdmin, AgentRecordManagement, OpDelete)
	require.True(t, first.Allowed)
	require.Equal(t, ReasonRoleDefault, first.Reason)

	// Demoted in the host app; nothing evicted the cache entry.
	asStandard := Principal{ID: 23, Role: RoleStandard, Active: true}
	second := g.Check(ctx, asStandard, AgentRecordManagement, OpDelete)
	assert.False(t, second.Allowed, "demoted principal must not ride the cached role default")
	assert.Equal(t, ReasonNoGrant, second.Reason)
	assert.Equal(t, int64(2), store.calls.Load(), "role mismatch must bypass the cache")

	// And the fresh resolution replaces the stale entry.
	third := g.Check(ctx, asStandard, AgentRecordManagement, OpRead)
	assert.False(t, third.Allowed)
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestRolePromotionResolvesFresh(t *testing.T) {
	store := newStubGrantSource()
	store.set(24, AgentReporting, &GrantSnapshot{Capabilities: CapabilitySet{Read: true}})
	g := newTestGateway(store)
	ctx := context.Background()

	asStandard := Principal{ID: 24, Role: RoleStandard, Active: true}
	first := g.Check(ctx, asStandard, AgentReporting, OpDelete)
	require.False(t, first.Allowed)

	// Promotion to elevated-org still honours the explicit narrowing grant.
	asOrgAdmin := Principal{ID: 24, Role: RoleElevatedOrg, Active: true}
	second := g.Check(ctx, asOrgAdmin, AgentReporting, OpDelete)
	assert.False(t, second.Allowed)
	assert.Equal(t, ReasonNotPermitted, second.Reason)
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestExpiredGrantDeniesWithReason(t *testing.T) {
	store := newStubGrantSource()
	past := time.Now().Add(-time.Hour)
	store.set(22, AgentMediaCapture, &GrantSnapshot{Capabilities: FullAccess, ExpiresAt: &past})
	g := newTestGateway(store)

	standard := Principal{ID: 22, Role: RoleStandard, Active: true}
	got := g.Check(context.Background(), standard, AgentMediaCapture, OpRead)

	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonGrantExpired, got.Reason)
}
