package authz

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/praxis-crm/praxis/internal/observability"
	"github.com/praxis-crm/praxis/internal/shared"
)

// DefaultCheckTimeout is the per-check resolution budget. A check that cannot
// resolve within it is denied, never allowed.
const DefaultCheckTimeout = 10 * time.Millisecond

// GrantSource reads the durable grant row for one (principal, agent) pair.
// Implemented by the grants repository; this is the only round trip on the
// cache-miss path.
type GrantSource interface {
	GrantSnapshot(ctx context.Context, principalID int64, agent Agent) (*GrantSnapshot, error)
}

// DeniedEvent describes a runtime denial for observability.
type DeniedEvent struct {
	PrincipalID   int64
	Agent         Agent
	Operation     Operation
	Reason        Reason
	CorrelationID string
	At            time.Time
}

// DenialSink receives sampled denial events. Implementations must be cheap;
// the gateway additionally calls them off the request goroutine so the denial
// path never waits on the audit store.
type DenialSink interface {
	RecordDenied(ctx context.Context, event DeniedEvent)
}

// AccessQuery names one (agent, operation) pair for bulk pre-flight checks.
type AccessQuery struct {
	Agent     Agent     `json:"agent"`
	Operation Operation `json:"operation"`
}

// Gateway is the single call surface for authorization checks. It owns the
// cache and consults the resolver on misses. It is safe for arbitrary
// concurrent callers.
type Gateway struct {
	store        GrantSource
	cache        Cache
	denials      DenialSink
	metrics      *observability.Metrics
	logger       *slog.Logger
	checkTimeout time.Duration
	sampleRate   float64
	group        singleflight.Group
}

// GatewayConfig collects gateway dependencies. Denials, Metrics and Logger
// are optional.
type GatewayConfig struct {
	Store        GrantSource
	Cache        Cache
	Denials      DenialSink
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	CheckTimeout time.Duration
	// SampleRate is the fraction of denials forwarded to the sink, in [0, 1].
	SampleRate float64
}

// NewGateway constructs a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.CheckTimeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:        cfg.Store,
		cache:        cfg.Cache,
		denials:      cfg.Denials,
		metrics:      cfg.Metrics,
		logger:       logger,
		checkTimeout: timeout,
		sampleRate:   cfg.SampleRate,
	}
}

// Check decides whether the principal may perform the operation on the agent.
// It never returns an error: evaluation failures are fail-closed denies.
func (g *Gateway) Check(ctx context.Context, principal Principal, agent Agent, op Operation) Decision {
	start := time.Now()
	decision := g.evaluate(ctx, principal, agent, op)
	g.metrics.ObserveCheck(decision.Allowed, string(decision.Reason), time.Since(start))
	if !decision.Allowed && decision.Reason != ReasonTimeout {
		g.sampleDenial(ctx, principal, agent, op, decision)
	}
	return decision
}

// CheckAll evaluates a batch of (agent, operation) pairs for UI pre-flight.
// It walks the identical resolution path as Check so frontend and backend can
// never drift; pre-flight denials are not sampled into the audit stream.
func (g *Gateway) CheckAll(ctx context.Context, principal Principal, queries []AccessQuery) []Decision {
	decisions := make([]Decision, len(queries))
	for i, q := range queries {
		decisions[i] = g.evaluate(ctx, principal, q.Agent, q.Operation)
	}
	return decisions
}

// InvalidateFor evicts cached resolutions for a principal. With agents it
// evicts those keys; without, every agent key (role or active-status changes
// affect all agents at once). Called by the grant store after each committed
// mutation, before the mutation call returns.
func (g *Gateway) InvalidateFor(ctx context.Context, principalID int64, agents ...Agent) error {
	if len(agents) == 0 {
		return g.cache.InvalidateAll(ctx, principalID)
	}
	for _, agent := range agents {
		if err := g.cache.Invalidate(ctx, principalID, agent); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) evaluate(ctx context.Context, principal Principal, agent Agent, op Operation) Decision {
	// Active flag and role tag arrive fresh from the identity boundary on
	// every call, so the terminal checks never touch cache or store.
	if !principal.Active {
		return Decision{Allowed: false, Reason: ReasonInactive}
	}
	if principal.Role == RoleElevatedSystem {
		return Decision{Allowed: true, Reason: ReasonRoleBypass}
	}

	ctx, cancel := context.WithTimeout(ctx, g.checkTimeout)
	defer cancel()

	res, err := g.cache.Get(ctx, principal.ID, agent)
	if err != nil {
		// A broken cache degrades to a miss; the store remains authoritative.
		g.logger.Warn("authz cache get", slog.Int64("principal", principal.ID), slog.String("agent", string(agent)), slog.Any("error", err))
		res = nil
	}
	if res != nil && res.Role != principal.Role {
		// The role tag changed since the entry was cached. Role and active
		// status arrive fresh on every call, so a mismatch means the entry is
		// stale; resolve against the store instead of honouring it.
		res = nil
	}
	g.metrics.ObserveCacheLookup(res != nil)
	if res == nil {
		res, err = g.resolve(ctx, principal, agent)
		if err != nil {
			g.logger.Warn("authz resolve failed, denying",
				slog.Int64("principal", principal.ID),
				slog.String("agent", string(agent)),
				slog.String("operation", string(op)),
				slog.Any("error", err))
			return Decision{Allowed: false, Reason: ReasonTimeout}
		}
	}
	return Decide(*res, op)
}

// resolve reads the grant row, runs the resolver and refills the cache.
// Concurrent misses for the same key are coalesced into one store read.
func (g *Gateway) resolve(ctx context.Context, principal Principal, agent Agent) (*Resolution, error) {
	key := fmt.Sprintf("%d:%s:%s", principal.ID, agent, principal.Role)
	resultChan := g.group.DoChan(key, func() (any, error) {
		snapshot, err := g.store.GrantSnapshot(ctx, principal.ID, agent)
		if err != nil {
			return nil, err
		}
		res := Resolve(principal, snapshot, time.Now().UTC())
		if err := g.cache.Put(ctx, principal.ID, agent, res); err != nil {
			g.logger.Warn("authz cache put", slog.Int64("principal", principal.ID), slog.String("agent", string(agent)), slog.Any("error", err))
		}
		return &res, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", shared.ErrResolutionTimeout, ctx.Err())
	case result := <-resultChan:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*Resolution), nil
	}
}

func (g *Gateway) sampleDenial(ctx context.Context, principal Principal, agent Agent, op Operation, decision Decision) {
	if g.denials == nil || g.sampleRate <= 0 {
		return
	}
	if g.sampleRate < 1 && rand.Float64() >= g.sampleRate {
		return
	}
	event := DeniedEvent{
		PrincipalID:   principal.ID,
		Agent:         agent,
		Operation:     op,
		Reason:        decision.Reason,
		CorrelationID: shared.CorrelationID(ctx),
		At:            time.Now().UTC(),
	}
	go g.denials.RecordDenied(context.WithoutCancel(ctx), event)
}
