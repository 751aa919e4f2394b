package fluxgate

import "github.com/fluxgate/fluxgate/rules"

// Result is the outcome of one rate limit check.
type Result = rules.Result

// RequestContext carries the request attributes key resolvers read.
type RequestContext = rules.RequestContext

// RemainingUnlimited marks a result produced without any applicable rule.
const RemainingUnlimited = rules.RemainingUnlimited
