// Package redis implements the storage ports on top of Redis, so several
// replicas of a host can share facts, transcripts and busy guards.
package redis
