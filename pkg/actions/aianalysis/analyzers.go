package aianalysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/stride/pkg/models"
	"github.com/spf13/cast"
)

var ErrUserRequired = errors.New("analysis requires a user")

const defaultWeeklyGoal = 3

func property(user *models.UserContext, key string) any {
	v, _ := user.Property(key)
	return v
}

// WeeklyProgress compares last week's workouts with the weekly goal.
func WeeklyProgress(_ context.Context, req Request) (*Result, error) {
	if req.User == nil {
		return nil, ErrUserRequired
	}

	done := cast.ToInt(property(req.User, "workoutsLastWeek"))

	goal := cast.ToInt(property(req.User, "weeklyGoal"))
	if goal <= 0 {
		goal = defaultWeeklyGoal
	}

	completion := float64(done) / float64(goal) * 100

	result := &Result{
		Summary: fmt.Sprintf("%d of %d workouts completed last week", done, goal),
		Metrics: map[string]any{
			"workouts":          done,
			"goal":              goal,
			"completionPercent": completion,
		},
	}

	if req.Options.IncludeInsights {
		switch {
		case done == 0:
			result.Insights = append(result.Insights, "No workouts were logged last week.")
		case done >= goal:
			result.Insights = append(result.Insights, "Weekly goal reached.")
		default:
			result.Insights = append(result.Insights, fmt.Sprintf("%d workouts short of the weekly goal.", goal-done))
		}
	}

	if req.Options.IncludeRecommendations {
		if done < goal {
			result.Recommendations = append(result.Recommendations, "Schedule your remaining sessions early in the week.")
		} else {
			result.Recommendations = append(result.Recommendations, "Consider raising your weekly goal by one session.")
		}
	}

	return result, nil
}

var nextWorkout = map[string]string{
	"strength":    "cardio",
	"cardio":      "mobility",
	"mobility":    "strength",
	"run":         "strength",
	"yoga":        "cardio",
	"hiit":        "mobility",
	"cycling":     "strength",
	"swimming":    "strength",
	"flexibility": "strength",
}

// WorkoutRecommendation alternates workout focus based on the last workout type.
func WorkoutRecommendation(_ context.Context, req Request) (*Result, error) {
	last := cast.ToString(req.Event.EventData["workoutType"])
	if last == "" && req.User != nil {
		last = cast.ToString(property(req.User, "lastWorkoutType"))
	}

	recommended, ok := nextWorkout[last]
	if !ok {
		recommended = "strength"
	}

	level := "beginner"
	if req.User != nil {
		if l := cast.ToString(property(req.User, "fitnessLevel")); l != "" {
			level = l
		}
	}

	result := &Result{
		Summary: fmt.Sprintf("Recommended next workout: %s", recommended),
		Metrics: map[string]any{
			"recommendedType": recommended,
			"lastType":        last,
			"level":           level,
		},
	}

	if req.Options.BasedOnHistory && req.User != nil {
		total := cast.ToInt(property(req.User, "totalWorkouts"))
		result.Metrics["totalWorkouts"] = total

		if total < 10 {
			result.Metrics["durationMinutes"] = 20
		} else {
			result.Metrics["durationMinutes"] = 45
		}
	}

	if req.Options.IncludeRecommendations {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("Try a %s %s session.", level, recommended))
	}

	return result, nil
}

// NextGoalSuggestions proposes the next goal from the current streak and goal.
func NextGoalSuggestions(_ context.Context, req Request) (*Result, error) {
	if req.User == nil {
		return nil, ErrUserRequired
	}

	streak := cast.ToInt(property(req.User, "currentStreak"))
	current := cast.ToInt(property(req.User, "weeklyGoal"))

	if current <= 0 {
		current = defaultWeeklyGoal
	}

	next := current
	if streak >= 14 {
		next = current + 1
	}

	result := &Result{
		Summary: fmt.Sprintf("Suggested weekly goal: %d workouts", next),
		Metrics: map[string]any{
			"streak":        streak,
			"suggestedGoal": next,
		},
	}

	if req.Options.BasedOnCurrentGoal {
		result.Metrics["currentGoal"] = current
	}

	if req.Options.IncludeInsights && streak > 0 {
		result.Insights = append(result.Insights, fmt.Sprintf("Current streak: %d days.", streak))
	}

	if req.Options.IncludeRecommendations {
		result.Recommendations = append(result.Recommendations, fmt.Sprintf("Aim for a %d-day streak next.", streak+7))
	}

	return result, nil
}
