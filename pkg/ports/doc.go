/*
Package ports defines the driven ports (interfaces) for the anima core.

These interfaces decouple the cognitive executor and the mental process
orchestrator from the language model, the storage media and the persona
source, so any of them can be swapped without touching the core.

# Key Interfaces

  - Processor: performs the language-model call, returning a resolved value or a Stream.
  - FactStore: durable key/value facts scoped to one soul (SoulMemoryStore backend).
  - TranscriptStore: persists a WorkingMemory between host sessions.
  - Locker: distributed busy guard so a soul runs one perception at a time across replicas.
  - BlueprintLoader: resolves persona documents.

Every storage port ships with a reusable contract suite (RunFactStoreContract,
RunTranscriptStoreContract, RunLockerContract) that adapters run from their own tests.
*/
package ports
