package matching

import (
	"math"
	"time"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
)

// ScoringWeights are the fixed per-dimension weights, summing to 1.0
type ScoringWeights struct {
	Age       float64
	Location  float64
	Education float64
	Religion  float64
	Lifestyle float64
	Interests float64
	Horoscope float64
	Activity  float64
}

// DefaultWeights mirror the production configuration defaults
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		Age:       0.15,
		Location:  0.15,
		Education: 0.10,
		Religion:  0.20,
		Lifestyle: 0.10,
		Interests: 0.10,
		Horoscope: 0.10,
		Activity:  0.10,
	}
}

const (
	neutralScore = 50.0
	fullScore    = 100.0
)

// Education levels in ascending order, used for adjacency credit
var educationRank = map[string]int{
	"high_school": 0,
	"diploma":     1,
	"bachelor":    2,
	"master":      3,
	"doctorate":   4,
}

// Lifestyle values considered compatible neighbours of each other
var lifestyleAdjacent = map[string]map[string]bool{
	"never":          {"occasionally": true, "socially": true},
	"occasionally":   {"never": true, "socially": true, "regularly": true},
	"socially":       {"never": true, "occasionally": true, "regularly": true},
	"regularly":      {"occasionally": true, "socially": true},
	"vegetarian":     {"eggetarian": true, "vegan": true},
	"eggetarian":     {"vegetarian": true, "non_vegetarian": true},
	"vegan":          {"vegetarian": true},
	"non_vegetarian": {"eggetarian": true},
}

// ScoringEngine computes pairwise compatibility scores in [0,100].
// Deterministic for identical inputs on the same calendar day.
type ScoringEngine struct {
	weights           ScoringWeights
	premiumBoost      float64
	verificationBoost float64
	dealBreakers      *DealBreakerFilter
	clock             clock.Clock
}

func NewScoringEngine(weights ScoringWeights, premiumBoost, verificationBoost float64, clk clock.Clock) *ScoringEngine {
	return &ScoringEngine{
		weights:           weights,
		premiumBoost:      premiumBoost,
		verificationBoost: verificationBoost,
		dealBreakers:      NewDealBreakerFilter(),
		clock:             clk,
	}
}

// Score computes the composite compatibility of candidate for seeker.
// Asymmetric: only the seeker's preferences are consulted.
func (e *ScoringEngine) Score(seeker *SeekerContext, candidate *CandidateContext) (float64, SubScores) {
	now := e.clock.Now()

	if e.dealBreakers.Violates(seeker, candidate, now) {
		return 0, SubScores{}
	}

	subs := SubScores{
		Age:       e.ageScore(seeker.Preference, candidate.Member, now),
		Location:  e.locationScore(seeker.Preference, candidate.Profile),
		Education: e.educationScore(seeker.Preference, candidate.Profile),
		Religion:  e.religionScore(seeker.Preference, candidate.Profile),
		Lifestyle: e.lifestyleScore(seeker.Preference, candidate.Profile),
		Interests: e.interestsScore(seeker.Interests, candidate.Interests),
		Horoscope: HoroscopeScore(seeker.Horoscope, candidate.Horoscope),
		Activity:  e.activityScore(candidate.Member.LastActiveAt, now),
	}

	composite := subs.Age*e.weights.Age +
		subs.Location*e.weights.Location +
		subs.Education*e.weights.Education +
		subs.Religion*e.weights.Religion +
		subs.Lifestyle*e.weights.Lifestyle +
		subs.Interests*e.weights.Interests +
		subs.Horoscope*e.weights.Horoscope +
		subs.Activity*e.weights.Activity

	if seeker.Member.PremiumActive {
		composite = e.ApplyPremiumBoost(composite)
	}
	if candidate.Member.Verified {
		composite = math.Min(fullScore, composite+e.verificationBoost)
	}

	return clampScore(composite), subs
}

// ApplyPremiumBoost adds the seeker premium increment, capped at 100
func (e *ScoringEngine) ApplyPremiumBoost(base float64) float64 {
	return math.Min(fullScore, base+e.premiumBoost)
}

// ageScore is 0 outside the preferred range, otherwise weighted toward
// the midpoint of the range.
func (e *ScoringEngine) ageScore(pref *Preference, candidate *Member, now time.Time) float64 {
	age := candidate.Age(now)
	if age < pref.MinAge || age > pref.MaxAge {
		return 0
	}

	span := float64(pref.MaxAge-pref.MinAge) / 2
	if span == 0 {
		return fullScore
	}

	mid := float64(pref.MinAge+pref.MaxAge) / 2
	return fullScore - (math.Abs(float64(age)-mid)/span)*50
}

func (e *ScoringEngine) locationScore(pref *Preference, candidate *Profile) float64 {
	if len(pref.Cities) == 0 && len(pref.Countries) == 0 {
		return neutralScore
	}
	if contains(pref.Cities, candidate.City) {
		return fullScore
	}
	if contains(pref.Countries, candidate.Country) {
		return 50
	}
	return 0
}

// educationScore gives full credit for set membership and graduated
// partial credit by level distance to the nearest preferred level.
func (e *ScoringEngine) educationScore(pref *Preference, candidate *Profile) float64 {
	if len(pref.EducationLevels) == 0 {
		return neutralScore
	}
	if contains(pref.EducationLevels, candidate.EducationLevel) {
		return fullScore
	}

	candidateRank, ok := educationRank[candidate.EducationLevel]
	if !ok {
		return 0
	}

	best := math.MaxInt32
	for _, level := range pref.EducationLevels {
		if rank, ok := educationRank[level]; ok {
			if d := abs(rank - candidateRank); d < best {
				best = d
			}
		}
	}
	if best == math.MaxInt32 {
		return 0
	}
	return math.Max(0, fullScore-40*float64(best))
}

// religionScore is all-or-nothing: set membership scores 100, exclusion
// scores 0, no configured preference is neutral.
func (e *ScoringEngine) religionScore(pref *Preference, candidate *Profile) float64 {
	if len(pref.Religions) == 0 {
		return neutralScore
	}
	if contains(pref.Religions, candidate.Religion) {
		return fullScore
	}
	return 0
}

func (e *ScoringEngine) lifestyleScore(pref *Preference, candidate *Profile) float64 {
	smoking := lifestyleDimensionScore(pref.Smoking, candidate.Smoking)
	drinking := lifestyleDimensionScore(pref.Drinking, candidate.Drinking)
	diet := lifestyleDimensionScore(pref.Diet, candidate.Diet)
	return (smoking + drinking + diet) / 3
}

func lifestyleDimensionScore(preferred []string, value string) float64 {
	if len(preferred) == 0 {
		return neutralScore
	}
	if contains(preferred, value) {
		return fullScore
	}
	for _, p := range preferred {
		if lifestyleAdjacent[p][value] {
			return 50
		}
	}
	return 0
}

// interestsScore is the Jaccard overlap of interest tags scaled to 100
func (e *ScoringEngine) interestsScore(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return neutralScore
	}

	set := make(map[string]bool, len(a))
	for _, tag := range a {
		set[tag] = true
	}

	shared := 0
	for _, tag := range b {
		if set[tag] {
			shared++
		}
	}

	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union) * fullScore
}

// activityScore gives full credit within a short recent window and
// decays toward a floor for long-inactive accounts.
func (e *ScoringEngine) activityScore(lastActive, now time.Time) float64 {
	const (
		recentWindowDays = 3
		floor            = 20.0
		decayPerDay      = 1.5
	)

	days := now.Sub(lastActive).Hours() / 24
	if days <= recentWindowDays {
		return fullScore
	}
	return math.Max(floor, fullScore-decayPerDay*(days-recentWindowDays))
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(fullScore, s))
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
