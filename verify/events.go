package verify

import (
	"time"

	"go.uber.org/zap"
)

// 事件阶段标签，覆盖验证流水线的每个决策点。
const (
	StageStart             = "verification_start"
	StageBasicResult       = "basic_verification_result"
	StagePlanningStart     = "dimension_planning_start"
	StageDimensionsPlanned = "dimensions_planned"
	StageDimSearchStart    = "dimension_search_start"
	StageDimSearchResult   = "dimension_search_result"
	StageEnhanceStart      = "enhancement_start"
	StageEnhanceChunk      = "enhancement_chunk"
	StageEnhanceComplete   = "enhancement_complete"
	StageComplete          = "verification_complete"
)

// Event 是验证过程中的一条结构化事件。
type Event struct {
	RunID     string         `json:"run_id"`
	Stage     string         `json:"stage"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink 接收验证事件。Send 失败只记日志，绝不影响流水线。
type Sink interface {
	Send(ev Event) error
}

// emit 发送事件到可选的 sink；sink 为 nil 时直接跳过。
// Send 内部 panic 同样被吞掉，验证器视角下发送永不阻塞流程。
func (v *Verifier) emit(sink Sink, runID, stage, content string, metadata map[string]any) {
	if sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			v.logger.Warn("event sink panicked",
				zap.String("stage", stage), zap.Any("panic", rec))
		}
	}()
	ev := Event{
		RunID:     runID,
		Stage:     stage,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	if err := sink.Send(ev); err != nil {
		v.logger.Warn("event emission failed",
			zap.String("stage", stage), zap.Error(err))
	}
}
