// Package permission decides whether a caller may create another companion.
package permission

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/z-companion/backend/internal/identity"
)

// Reason is a machine-readable denial code.
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonQuotaExceeded   Reason = "quota-exceeded"
	// ReasonError means evaluation itself failed, not that the policy said no.
	ReasonError Reason = "error"
)

// Decision is the verdict for one request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Failed reports whether the decision came from an evaluation failure.
func (d Decision) Failed() bool {
	return !d.Allowed && d.Reason == ReasonError
}

// CompanionCounter counts companions created by a user.
type CompanionCounter interface {
	CountByAuthor(ctx context.Context, author string) (int, error)
}

// Policy maps plans and features to companion quotas.
type Policy struct {
	// UnlimitedPlans lift the quota entirely.
	UnlimitedPlans []string

	// FeatureLimits grant a companion quota per entitlement; the largest wins.
	FeatureLimits map[string]int
}

// DefaultPolicy mirrors the product's pricing table.
func DefaultPolicy() Policy {
	return Policy{
		UnlimitedPlans: []string{"pro"},
		FeatureLimits: map[string]int{
			"3_companion_limit":  3,
			"10_companion_limit": 10,
		},
	}
}

// limitFor returns the caller's quota; unlimited is true for unlimited plans.
func (p Policy) limitFor(caller *identity.Identity) (limit int, unlimited bool) {
	for _, plan := range p.UnlimitedPlans {
		if caller.HasPlan(plan) {
			return 0, true
		}
	}
	for feature, n := range p.FeatureLimits {
		if caller.HasFeature(feature) && n > limit {
			limit = n
		}
	}
	return limit, false
}

// Gate evaluates the companion creation policy.
type Gate struct {
	identities identity.Provider
	companions CompanionCounter
	policy     Policy
}

// NewGate wires a gate to its collaborators.
func NewGate(identities identity.Provider, companions CompanionCounter, policy Policy) *Gate {
	return &Gate{identities: identities, companions: companions, policy: policy}
}

// Check resolves the current caller and evaluates the policy for them.
func (g *Gate) Check(ctx context.Context) (decision Decision) {
	defer recoverDecision(&decision)

	caller, err := g.identities.CurrentUser(ctx)
	if err != nil {
		log.Printf("[permission] identity resolution failed: %v", err)
		return errorDecision(err)
	}
	return g.Evaluate(ctx, caller)
}

// Evaluate applies the policy to caller. It never returns an error; failures
// degrade to a denial with ReasonError.
func (g *Gate) Evaluate(ctx context.Context, caller *identity.Identity) (decision Decision) {
	defer recoverDecision(&decision)

	if caller == nil || caller.UserID == "" {
		return Decision{Allowed: false, Reason: ReasonUnauthenticated}
	}

	limit, unlimited := g.policy.limitFor(caller)
	if unlimited {
		return Decision{Allowed: true}
	}

	count, err := g.companions.CountByAuthor(ctx, caller.UserID)
	if err != nil {
		log.Printf("[permission] counting companions for %s failed: %v", caller.UserID, err)
		return errorDecision(err)
	}
	if count >= limit {
		return Decision{Allowed: false, Reason: ReasonQuotaExceeded}
	}
	return Decision{Allowed: true}
}

// CurrentUser exposes the gate's identity provider to handlers that need the
// caller after a successful check.
func (g *Gate) CurrentUser(ctx context.Context) (*identity.Identity, error) {
	return g.identities.CurrentUser(ctx)
}

func errorDecision(err error) Decision {
	return Decision{Allowed: false, Reason: ReasonError, Detail: err.Error()}
}

func recoverDecision(decision *Decision) {
	if r := recover(); r != nil {
		log.Printf("[permission] evaluation panicked: %v", r)
		*decision = Decision{Allowed: false, Reason: ReasonError, Detail: fmt.Sprint(r)}
	}
}
