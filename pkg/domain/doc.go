/*
Package domain contains the core domain models of the dispatch engine.

It defines the per-turn state contract, the durable session record, the action
catalog and the failure taxonomy. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Turn: the strongly-typed context threaded through every graph node in one call.
  - Session: the persisted continuation of a confirmation, wizard or selection flow.
  - ActionSpec: static description of a named business action (category, target, sub-resource).
  - Failure / EngineError: expected outcomes carried as data versus engine faults that force the fallback.
*/
package domain
