package domain

// Confidence classifies how strongly a consensus decision is supported.
type Confidence string

const (
	// ConfidenceHigh means every received vote agreed.
	ConfidenceHigh Confidence = "high"

	// ConfidenceMedium means a strict majority of received votes agreed.
	ConfidenceMedium Confidence = "medium"

	// ConfidenceNone means no automatic decision could be made.
	ConfidenceNone Confidence = "none"
)

// Vote is one tier's answer to a consensus question. Votes are ephemeral:
// they live only for the duration of a single consensus call.
type Vote struct {
	// TierID identifies the tier that produced the vote.
	TierID string `json:"tier_id"`

	// Decision is the voted value.
	Decision string `json:"decision"`

	// Confidence is the tier's own confidence in [0,1], carried from the
	// response source (primary calls report 1.0, cache matches less).
	Confidence float64 `json:"confidence"`

	// Err records why a tier contributed no usable vote.
	Err error `json:"-"`
}

// ConsensusDecision is the aggregate of a multi-tier vote.
type ConsensusDecision struct {
	// Decision is the agreed value; empty when no automatic decision
	// was reached.
	Decision string `json:"decision,omitempty"`

	// Confidence classifies the agreement strength.
	Confidence Confidence `json:"confidence"`

	// Votes holds the received votes in configured tier order. Tiers that
	// failed entirely are absent.
	Votes []Vote `json:"votes"`

	// NeedsReview is set when the decision must go to a human: below
	// quorum, tied, or no majority. Split majority decisions keep
	// NeedsReview false but record a split-decision trigger on the state.
	NeedsReview bool `json:"needs_review"`
}
