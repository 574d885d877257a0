/*
Package ports defines the driven ports (interfaces) for the dispatch engine.

These interfaces decouple the workflow from external implementations, allowing
the engine to work with various storage backends, fleet directories and classifiers.

# Key Interfaces

  - SessionStore: Persists confirmation, wizard and selection sessions with upsert and compare-and-set.
  - Directory: Read-only fleet lookups used by target resolution and risk classification.
  - IntentClassifier: One call per turn returning a structured intent.
  - ActionHandler: A named business action with a uniform result contract.
  - EventPublisher: Optional fan-out of executed actions.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.
*/
package ports
