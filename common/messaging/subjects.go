package messaging

// Subject constants for the payproof message bus.
// Follow the pattern: {domain}.{resource}.{action}
const (
	// SubjectProofsGenerate carries verified events from the gateway to the
	// proof orchestrator (request/reply).
	SubjectProofsGenerate = "payproof.proofs.generate"
)

// Queue group names for load-balanced consumers.
const (
	// QueueProofWorkers is the pool of orchestrator instances answering
	// proof generation requests. Each request is handled by one member.
	QueueProofWorkers = "proof-workers"
)
