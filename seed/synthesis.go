package seed

// VerificationStatus 表达综合结论对检索证据的依赖程度。
type VerificationStatus string

const (
	StatusVerified          VerificationStatus = "verified"
	StatusPartiallyVerified VerificationStatus = "partially_verified"
	StatusNeedsVerification VerificationStatus = "needs_verification"
	StatusInsufficientData  VerificationStatus = "insufficient_data"
)

// Synthesis 是综合阶段的产物；ContextualSeed 即思考种子文本。
type Synthesis struct {
	ContextualSeed string             `json:"contextual_seed"`
	Sources        []string           `json:"information_sources"`
	Confidence     float64            `json:"confidence"` // [0,1]
	KeyInsights    []string           `json:"key_insights"`
	KnowledgeGaps  []string           `json:"knowledge_gaps"`
	Status         VerificationStatus `json:"verification_status"`
}
