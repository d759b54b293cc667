// Package validate defines the Validator extension point PoolManager
// delegates to. The current design does not perform active liveness
// probing: StubValidator is the default and always returns false.
package validate

import "proxyfleet/internal/proxypool/model"

// Validator is injected into PoolManager and consulted only through
// PoolManager.Validate. It is a reserved extension point, not used for any
// pool decision (acquire/reject/discard never call it themselves).
type Validator interface {
	Validate(item *model.ProxyItem) bool
}

// StubValidator is the default Validator: it never performs I/O and always
// reports the item as invalid, a fixed false until active health checks
// are built.
type StubValidator struct{}

func (StubValidator) Validate(*model.ProxyItem) bool { return false }
