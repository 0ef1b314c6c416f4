package gateway

import (
	"context"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// Scheme is the credential kind named in the Authorization header.
type Scheme string

const (
	SchemeNone   Scheme = ""
	SchemeBearer Scheme = "Bearer"
	SchemeAPIKey Scheme = "ApiKey"
)

// metricLabel is the lowercase form used in metrics and logs.
func (s Scheme) metricLabel() string {
	switch s {
	case SchemeBearer:
		return "bearer"
	case SchemeAPIKey:
		return "apikey"
	default:
		return "none"
	}
}

// RequestContext is the value threaded through a pipeline. It is never
// mutated: each step returns an updated copy.
type RequestContext struct {
	header       string
	scheme       Scheme
	token        string
	principal    *domain.User
	apiKeyID     string
	reverified   bool
	secondFactor bool
}

// NewRequestContext starts a pipeline from the raw Authorization header.
func NewRequestContext(header string) RequestContext {
	return RequestContext{header: header}
}

// Scheme returns the parsed credential scheme.
func (rc RequestContext) Scheme() Scheme { return rc.scheme }

// Authenticated reports whether a principal has been resolved.
func (rc RequestContext) Authenticated() bool { return rc.principal != nil }

// Principal returns a copy of the authenticated user, or nil.
func (rc RequestContext) Principal() *domain.User {
	if rc.principal == nil {
		return nil
	}
	return rc.principal.Clone()
}

// PrincipalID returns the authenticated user id, or "".
func (rc RequestContext) PrincipalID() string {
	if rc.principal == nil {
		return ""
	}
	return rc.principal.ID
}

// APIKeyID is the id of the key used to authenticate, when Scheme is ApiKey.
func (rc RequestContext) APIKeyID() string { return rc.apiKeyID }

// Reverified reports whether the current password was re-checked.
func (rc RequestContext) Reverified() bool { return rc.reverified }

// SecondFactorPassed reports whether a one-time code was verified, or the
// principal has no second factor enabled.
func (rc RequestContext) SecondFactorPassed() bool { return rc.secondFactor }

func (rc RequestContext) withCredential(scheme Scheme, token string) RequestContext {
	rc.scheme = scheme
	rc.token = token
	return rc
}

func (rc RequestContext) withPrincipal(u *domain.User, apiKeyID string) RequestContext {
	rc.principal = u.Clone()
	rc.apiKeyID = apiKeyID
	// the raw token is not needed past this point
	rc.token = ""
	return rc
}

func (rc RequestContext) withReverified() RequestContext {
	rc.reverified = true
	return rc
}

func (rc RequestContext) withSecondFactor() RequestContext {
	rc.secondFactor = true
	return rc
}

// Step is one stage of the pipeline. A non-nil error short-circuits the
// remaining steps.
type Step func(ctx context.Context, rc RequestContext) (RequestContext, error)

// Chain composes steps left to right into one Step.
func Chain(steps ...Step) Step {
	return func(ctx context.Context, rc RequestContext) (RequestContext, error) {
		for _, step := range steps {
			next, err := step(ctx, rc)
			if err != nil {
				return rc, err
			}
			rc = next
		}
		return rc, nil
	}
}
