package domain

import "math"

// ScoreWindowDays is the trailing window used by the health score: [today-7, today].
const ScoreWindowDays = 7

const (
	weeklyStepGoal      = 70000.0
	weeklyHeartGoal     = 150.0
	dailyStepGoal       = 8000
	maxStepScore        = 40.0
	maxHeartScore       = 20.0
	goalDaysForBonus    = 3
	goalDaysForMaxBonus = 5
)

// Score tips, emitted in this order when their thresholds fire.
const (
	TipIncreaseSteps = "Try to increase your daily steps to boost your score."
	TipLogWeight     = "Log your weight at least 3 times a week for consistency points."
	TipPraise        = "You're crushing it! Keep up the momentum."
	TipDefault       = "Great start! Keep moving to see your score rise."
)

// ScoreBreakdown holds the rounded component scores.
type ScoreBreakdown struct {
	Activity    int
	Consistency int
	Trend       int
}

// ScoreMetrics exposes the raw totals the score was computed from.
type ScoreMetrics struct {
	TotalSteps       int64
	TotalHeartPoints float64
	WeightLogs       int
	PhotoLogs        int
	DaysHittingGoal  int
}

// HealthScoreResult is derived on every request and never persisted.
type HealthScoreResult struct {
	Score     int
	Breakdown ScoreBreakdown
	Metrics   ScoreMetrics
	Tips      []string
}

// ComputeHealthScore derives the 0-100 score from a week of activity plus log counts.
// Missing data contributes zero; the function has no side effects.
func ComputeHealthScore(activity []DailyActivity, weightLogCount, photoLogCount int) HealthScoreResult {
	var (
		totalSteps  int64
		totalHeart  float64
		daysHitGoal int
	)
	for _, day := range activity {
		totalSteps += day.Steps
		totalHeart += day.HeartMinutes
		if day.Steps >= dailyStepGoal {
			daysHitGoal++
		}
	}

	stepScore := math.Min(maxStepScore, float64(totalSteps)/weeklyStepGoal*maxStepScore)
	heartScore := math.Min(maxHeartScore, totalHeart/weeklyHeartGoal*maxHeartScore)
	activityScore := stepScore + heartScore

	consistencyScore := 0.0
	switch {
	case weightLogCount >= 3:
		consistencyScore += 10
	case weightLogCount >= 1:
		consistencyScore += 5
	}
	if photoLogCount >= 1 {
		consistencyScore += 10
	}

	// The thresholds stack: five goal days earn both bonuses.
	trendScore := 0.0
	if daysHitGoal >= goalDaysForBonus {
		trendScore += 10
	}
	if daysHitGoal >= goalDaysForMaxBonus {
		trendScore += 10
	}

	total := math.Round(math.Min(100, activityScore+consistencyScore+trendScore))

	return HealthScoreResult{
		Score: int(total),
		Breakdown: ScoreBreakdown{
			Activity:    int(math.Round(activityScore)),
			Consistency: int(math.Round(consistencyScore)),
			Trend:       int(math.Round(trendScore)),
		},
		Metrics: ScoreMetrics{
			TotalSteps:       totalSteps,
			TotalHeartPoints: totalHeart,
			WeightLogs:       weightLogCount,
			PhotoLogs:        photoLogCount,
			DaysHittingGoal:  daysHitGoal,
		},
		Tips: scoreTips(activityScore, consistencyScore),
	}
}

func scoreTips(activityScore, consistencyScore float64) []string {
	tips := make([]string, 0, 3)
	if activityScore < 30 {
		tips = append(tips, TipIncreaseSteps)
	}
	if consistencyScore < 10 {
		tips = append(tips, TipLogWeight)
	}
	if activityScore > 50 && consistencyScore > 15 {
		tips = append(tips, TipPraise)
	}
	if len(tips) == 0 {
		return []string{TipDefault}
	}
	return tips
}
