package rules

import (
	"sync"

	"github.com/fluxgate/fluxgate/utils/builderpool"
)

// Resolver derives a bucket subject from a request context and a rule.
//
// Resolvers are pure functions: they must not observe time or mutable
// external state. ok=false means the request has no subject for this rule
// ("no matching subject, skip this rule") — no bucket is consumed and the
// rule neither allows nor rejects on its own.
type Resolver func(rctx RequestContext, rule Rule) (key Key, ok bool, err error)

var (
	resolverMu  sync.RWMutex
	resolverReg = make(map[string]Resolver)
)

// RegisterResolver registers a resolver under a key strategy id. Later
// registrations replace earlier ones, so applications can override the
// defaults.
func RegisterResolver(id string, resolver Resolver) {
	resolverMu.Lock()
	defer resolverMu.Unlock()
	resolverReg[id] = resolver
}

// LookupResolver returns the resolver registered under id. Unknown ids are a
// fatal configuration error: rule sets are hot-loaded, so the failure
// surfaces at the first check that needs the strategy, not at startup.
func LookupResolver(id string) (Resolver, error) {
	resolverMu.RLock()
	defer resolverMu.RUnlock()

	resolver, ok := resolverReg[id]
	if !ok {
		return nil, NewResolverNotFoundError(id)
	}
	return resolver, nil
}

// DispatchResolver returns the default rule-set resolver: each rule's
// subject comes from the registry entry named by the rule's key strategy id
// (falling back to its scope).
func DispatchResolver() Resolver {
	return func(rctx RequestContext, rule Rule) (Key, bool, error) {
		resolver, err := LookupResolver(rule.ResolverID())
		if err != nil {
			return "", false, err
		}
		return resolver(rctx, rule)
	}
}

// FieldResolver resolves the subject from a fixed context accessor. An empty
// field value means subject-absent.
func FieldResolver(field func(RequestContext) string) Resolver {
	return func(rctx RequestContext, _ Rule) (Key, bool, error) {
		v := field(rctx)
		if v == "" {
			return "", false, nil
		}
		return Key(v), true, nil
	}
}

// AttributeResolver resolves the subject from a named context attribute.
func AttributeResolver(name string) Resolver {
	return func(rctx RequestContext, _ Rule) (Key, bool, error) {
		v, ok := rctx.Attribute(name)
		if !ok || v == "" {
			return "", false, nil
		}
		return Key(v), true, nil
	}
}

// CompositeResolver joins the results of several resolvers with colons to
// form one composite subject. The subject is absent if any part is absent.
func CompositeResolver(parts ...Resolver) Resolver {
	return func(rctx RequestContext, rule Rule) (Key, bool, error) {
		sb := builderpool.Get()
		defer builderpool.Put(sb)

		for i, part := range parts {
			k, ok, err := part(rctx, rule)
			if err != nil {
				return "", false, err
			}
			if !ok {
				return "", false, nil
			}
			if i > 0 {
				sb.WriteByte(':')
			}
			sb.WriteString(string(k))
		}
		return Key(sb.String()), true, nil
	}
}

func init() {
	RegisterResolver(string(ScopeGlobal), func(RequestContext, Rule) (Key, bool, error) {
		return "global", true, nil
	})
	RegisterResolver(string(ScopePerIP), FieldResolver(func(c RequestContext) string { return c.ClientIP }))
	RegisterResolver(string(ScopePerUser), FieldResolver(func(c RequestContext) string { return c.UserID }))
	RegisterResolver(string(ScopePerAPIKey), FieldResolver(func(c RequestContext) string { return c.APIKey }))
}
