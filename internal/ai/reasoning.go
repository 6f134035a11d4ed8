package ai

import (
	"strings"
)

// AutoReasoningBudget lets the transport pick a reasoning setting suited to the model
const AutoReasoningBudget = -1

// minimalReasoningBudget is used for auto mode on models that only accept a numeric budget
const minimalReasoningBudget = 1024

// ReasoningLevel is a named reasoning effort for models that accept one
type ReasoningLevel string

const (
	ReasoningLow    ReasoningLevel = "low"
	ReasoningMedium ReasoningLevel = "medium"
	ReasoningHigh   ReasoningLevel = "high"
)

// Reasoning configures hidden deliberation for a call. Exactly one of Level or Budget is set.
type Reasoning struct {
	Level  ReasoningLevel
	Budget int
}

// leveledReasoningPrefixes are model families known to take a named reasoning level
var leveledReasoningPrefixes = []string{
	"gemini-3",
}

// SupportsLeveledReasoning reports whether the profile's model accepts a named reasoning level
func SupportsLeveledReasoning(profile ModelProfile) bool {
	if profile.LeveledReasoning != nil {
		return *profile.LeveledReasoning
	}
	model := strings.ToLower(strings.TrimPrefix(profile.Model, "models/"))
	for _, prefix := range leveledReasoningPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// DeriveReasoning turns the profile's configured budget into the reasoning setting sent with a call. A nil result
// means reasoning is not requested. OpenAI-compatible endpoints never receive a reasoning setting.
func DeriveReasoning(profile ModelProfile) *Reasoning {
	if profile.Provider == ProviderOpenAI {
		return nil
	}
	switch budget := profile.ReasoningBudget; {
	case budget == 0:
		return nil
	case budget == AutoReasoningBudget:
		if SupportsLeveledReasoning(profile) {
			return &Reasoning{Level: ReasoningHigh}
		}
		return &Reasoning{Budget: minimalReasoningBudget}
	case budget < 0:
		return nil
	default:
		return &Reasoning{Budget: budget}
	}
}

// levelBudgets maps named levels to token budgets for providers that only take a number
var levelBudgets = map[ReasoningLevel]int{
	ReasoningLow:    1024,
	ReasoningMedium: 8192,
	ReasoningHigh:   24576,
}

// TokenBudget returns the numeric budget for r, translating a named level when needed
func (r Reasoning) TokenBudget() int {
	if r.Level != "" {
		if b, ok := levelBudgets[r.Level]; ok {
			return b
		}
		return minimalReasoningBudget
	}
	return r.Budget
}
