package ratelimit

import "context"

func testContext() context.Context { return context.Background() }
