/*
Package domain contains the core domain models of a soul.

It defines the conversation log and the values that flow between the
executor, the orchestrator and the host. This package is kept pure and free
of external dependencies like I/O or persistence, following Hexagonal
Architecture principles.

# Key Entities

  - MemoryEntry: One immutable item of the conversation (role, text or content blocks, metadata).
  - WorkingMemory: Immutable, append-only log with a stable soul name. Forks share structure.
  - Action: A "speak" or "log" effect destined for the Action Bus.
  - Blueprint: The persona document seeded as the first system entry.
  - ValidationError, ProcessorError, ReentrancyError: The error taxonomy surfaced to hosts.
*/
package domain
