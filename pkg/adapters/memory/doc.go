// Package memory provides in-process implementations of the storage ports.
// They are interchangeable with the durable adapters and are what tests and
// ephemeral souls use.
package memory
