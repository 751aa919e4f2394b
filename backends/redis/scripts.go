package redis

import _ "embed"

// Lua scripts for the shared-store bucket operations. Embedded at compile
// time; each runs as one atomic unit on the server.

//go:embed scripts/consume.lua
var consumeScript string

//go:embed scripts/compensate.lua
var compensateScript string

//go:embed scripts/peek.lua
var peekScript string
