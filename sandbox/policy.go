package sandbox

import "strings"

// PolicySet holds the capability denylist and optional allowlist applied
// to untrusted code. It is built once at startup from configuration and
// never mutated, so concurrent reads need no synchronization.
type PolicySet struct {
	denylist  map[string]struct{}
	allowlist map[string]struct{}
}

// NewPolicySet builds an immutable PolicySet from the configured lists
func NewPolicySet(denylist, allowlist []string) PolicySet {
	p := PolicySet{
		denylist:  make(map[string]struct{}, len(denylist)),
		allowlist: make(map[string]struct{}, len(allowlist)),
	}
	for _, name := range denylist {
		p.denylist[strings.TrimSpace(name)] = struct{}{}
	}
	for _, name := range allowlist {
		p.allowlist[strings.TrimSpace(name)] = struct{}{}
	}
	return p
}

// Denied reports whether the module name is on the denylist
func (p PolicySet) Denied(module string) bool {
	_, ok := p.denylist[moduleRoot(module)]
	return ok
}

// Permitted reports whether the module name passes the policy. The
// denylist is checked first and always wins; when an allowlist is
// configured, anything absent from it is rejected.
func (p PolicySet) Permitted(module string) bool {
	root := moduleRoot(module)
	if _, ok := p.denylist[root]; ok {
		return false
	}
	if len(p.allowlist) == 0 {
		return true
	}
	_, ok := p.allowlist[root]
	return ok
}

// moduleRoot reduces a dotted module path to its top-level package name,
// so "os.path" is governed by the "os" policy entry.
func moduleRoot(module string) string {
	if idx := strings.IndexByte(module, '.'); idx >= 0 {
		return module[:idx]
	}
	return module
}
