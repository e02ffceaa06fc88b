package core

import "github.com/shopspring/decimal"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set:
// lifecycle graph enforcement, per-day capacity defense, release gating, and
// workflow replay agreement.
func NewDefaultRulesEngine(dailyCapacityMinutes decimal.Decimal) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewStatusTransitionRule())
	engine.Register(NewDailyCapacityRule(dailyCapacityMinutes))
	engine.Register(NewReleaseGateRule())
	engine.Register(NewWorkflowReplayRule())
	return engine
}
