// Package aianalysis dispatches ai_analysis actions to named analyzers.
package aianalysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cast"
)

var ErrUnknownAnalysis = errors.New("unknown analysis type")

// Options are the flags an action passes in its "options" object.
type Options struct {
	IncludeInsights        bool `json:"includeInsights"`
	IncludeRecommendations bool `json:"includeRecommendations"`
	BasedOnHistory         bool `json:"basedOnHistory"`
	BasedOnCurrentGoal     bool `json:"basedOnCurrentGoal"`
}

type Request struct {
	Event   models.EventContext
	User    *models.UserContext
	Options Options
	Now     time.Time
}

// Result is the structured output shared by every analyzer.
type Result struct {
	AnalysisType    string         `json:"analysis_type"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Summary         string         `json:"summary"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	Insights        []string       `json:"insights,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

type Analyzer func(ctx context.Context, req Request) (*Result, error)

type Handler struct {
	clock     clockwork.Clock
	logger    *slog.Logger
	mu        sync.RWMutex
	analyzers map[string]Analyzer
}

// NewHandler returns a handler with weekly_progress, workout_recommendation and
// next_goal_suggestions registered.
func NewHandler(clock clockwork.Clock, logger *slog.Logger) *Handler {
	h := &Handler{
		clock:     clock,
		logger:    logger.With("module", "ai_analysis_action"),
		analyzers: make(map[string]Analyzer),
	}

	h.Register("weekly_progress", WeeklyProgress)
	h.Register("workout_recommendation", WorkoutRecommendation)
	h.Register("next_goal_suggestions", NextGoalSuggestions)

	return h
}

func (h *Handler) Register(name string, analyzer Analyzer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.analyzers[name] = analyzer
}

func (h *Handler) Types() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.analyzers))
	for name := range h.analyzers {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func (h *Handler) Execute(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error) {
	analysisType, ok := actions.StringConfig(config, "analysisType")
	if !ok {
		return nil, actions.MissingConfig("analysisType")
	}

	h.mu.RLock()
	analyzer, ok := h.analyzers[analysisType]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalysis, analysisType)
	}

	req := Request{
		Event:   event,
		User:    user,
		Options: parseOptions(actions.MapConfig(config, "options")),
		Now:     h.clock.Now().UTC(),
	}

	result, err := analyzer(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s analysis: %w", analysisType, err)
	}

	result.AnalysisType = analysisType
	result.GeneratedAt = req.Now

	h.logger.InfoContext(ctx, "analysis generated", "analysis_type", analysisType, "insights", len(result.Insights))

	return result, nil
}

func parseOptions(raw map[string]any) Options {
	return Options{
		IncludeInsights:        cast.ToBool(raw["includeInsights"]),
		IncludeRecommendations: cast.ToBool(raw["includeRecommendations"]),
		BasedOnHistory:         cast.ToBool(raw["basedOnHistory"]),
		BasedOnCurrentGoal:     cast.ToBool(raw["basedOnCurrentGoal"]),
	}
}
