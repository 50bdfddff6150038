/*
Package resilience provides a circuit breaker guarding exporter backends.

# Overview

An export worker asks the breaker before each delivery attempt. A backend
that keeps failing trips the breaker open, so subsequent batches drop fast
instead of burning the full retry budget against a dead endpoint; after a
cooldown a single probe batch is let through and a success closes the
circuit again.

# Usage

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	})

	if !breaker.Allow() {
		// skip the backend, count the drop
		return
	}
	if err := exporter.Export(ctx, batch); err != nil {
		breaker.Failure()
		return
	}
	breaker.Success()

# States

	Closed --[consecutive failures]-> Open --[cooldown]-> HalfOpen --[success]-> Closed
	                                                          |
	                                                      [failure]
	                                                          v
	                                                        Open
*/
package resilience
