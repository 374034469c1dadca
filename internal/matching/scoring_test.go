package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
)

func testNow() time.Time {
	return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
}

// birth date such that the member is exactly `age` whole years old at
// testNow, with the birthday already past this year.
func birthForAge(age int) time.Time {
	return testNow().AddDate(-age, 0, -30)
}

func testEngine() *ScoringEngine {
	return NewScoringEngine(DefaultWeights(), 5, 3, clock.NewFixed(testNow()))
}

func testSeeker(opts ...func(*SeekerContext)) *SeekerContext {
	s := &SeekerContext{
		Member: &Member{
			ID:           1,
			BirthDate:    birthForAge(30),
			LastActiveAt: testNow().Add(-24 * time.Hour),
		},
		Profile: &Profile{
			MemberID: 1,
			Religion: "hindu",
			City:     "bengaluru",
			Country:  "india",
		},
		Preference: &Preference{
			MemberID: 1,
			MinAge:   25,
			MaxAge:   35,
		},
		Interests: []string{"travel", "music", "cooking"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func testCandidate(opts ...func(*CandidateContext)) *CandidateContext {
	c := &CandidateContext{
		Member: &Member{
			ID:           2,
			BirthDate:    birthForAge(29),
			LastActiveAt: testNow().Add(-24 * time.Hour),
		},
		Profile: &Profile{
			MemberID:       2,
			Religion:       "hindu",
			City:           "bengaluru",
			Country:        "india",
			EducationLevel: "master",
			Smoking:        "never",
			Drinking:       "occasionally",
			Diet:           "vegetarian",
		},
		Interests: []string{"travel", "music", "cooking"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func TestScoreStaysInBounds(t *testing.T) {
	engine := testEngine()

	pairs := []struct {
		seeker    *SeekerContext
		candidate *CandidateContext
	}{
		{testSeeker(), testCandidate()},
		{testSeeker(func(s *SeekerContext) {
			s.Member.PremiumActive = true
			s.Preference.Religions = []string{"hindu"}
			s.Preference.Cities = []string{"bengaluru"}
		}), testCandidate(func(c *CandidateContext) {
			c.Member.Verified = true
		})},
		{testSeeker(func(s *SeekerContext) {
			s.Preference.Religions = []string{"christian"}
			s.Preference.Cities = []string{"mumbai"}
		}), testCandidate(func(c *CandidateContext) {
			c.Member.LastActiveAt = testNow().AddDate(0, -6, 0)
		})},
	}

	for _, pair := range pairs {
		score, _ := engine.Score(pair.seeker, pair.candidate)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	}
}

func TestScoreDeterministic(t *testing.T) {
	engine := testEngine()
	seeker, candidate := testSeeker(), testCandidate()

	first, firstSubs := engine.Score(seeker, candidate)
	second, secondSubs := engine.Score(seeker, candidate)

	assert.Equal(t, first, second)
	assert.Equal(t, firstSubs, secondSubs)
}

func TestAgeDealBreakerZeroesScore(t *testing.T) {
	engine := testEngine()
	seeker := testSeeker(func(s *SeekerContext) {
		s.Preference.DealBreakers = []string{DimensionAge}
	})
	candidate := testCandidate(func(c *CandidateContext) {
		c.Member.BirthDate = birthForAge(40)
	})

	score, subs := engine.Score(seeker, candidate)
	assert.Zero(t, score)
	assert.Equal(t, SubScores{}, subs)
}

func TestReligionDealBreakerZeroesScore(t *testing.T) {
	engine := testEngine()
	seeker := testSeeker(func(s *SeekerContext) {
		s.Preference.Religions = []string{"hindu"}
		s.Preference.DealBreakers = []string{DimensionReligion}
	})
	candidate := testCandidate(func(c *CandidateContext) {
		c.Profile.Religion = "christian"
	})

	score, _ := engine.Score(seeker, candidate)
	assert.Zero(t, score)
}

func TestAgeSubScore(t *testing.T) {
	engine := testEngine()
	pref := &Preference{MinAge: 25, MaxAge: 35}

	tests := []struct {
		name string
		age  int
		want float64
	}{
		{"midpoint", 30, 100},
		{"one off midpoint", 29, 90},
		{"range edge", 25, 50},
		{"below range", 24, 0},
		{"above range", 36, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.ageScore(pref, &Member{BirthDate: birthForAge(tc.age)}, testNow())
			assert.InDelta(t, tc.want, got, 0.001)
		})
	}
}

func TestReligionSubScore(t *testing.T) {
	engine := testEngine()

	match := engine.religionScore(&Preference{Religions: []string{"hindu", "jain"}}, &Profile{Religion: "hindu"})
	assert.Equal(t, 100.0, match)

	miss := engine.religionScore(&Preference{Religions: []string{"hindu"}}, &Profile{Religion: "christian"})
	assert.Equal(t, 0.0, miss)

	neutral := engine.religionScore(&Preference{}, &Profile{Religion: "christian"})
	assert.Equal(t, 50.0, neutral)
}

func TestEducationSubScore(t *testing.T) {
	engine := testEngine()
	pref := &Preference{EducationLevels: []string{"master"}}

	assert.Equal(t, 100.0, engine.educationScore(pref, &Profile{EducationLevel: "master"}))
	assert.Equal(t, 60.0, engine.educationScore(pref, &Profile{EducationLevel: "bachelor"}))
	assert.Equal(t, 20.0, engine.educationScore(pref, &Profile{EducationLevel: "diploma"}))
	assert.Equal(t, 50.0, engine.educationScore(&Preference{}, &Profile{EducationLevel: "bachelor"}))
}

func TestInterestsSubScore(t *testing.T) {
	engine := testEngine()

	identical := engine.interestsScore([]string{"travel", "music"}, []string{"travel", "music"})
	assert.Equal(t, 100.0, identical)

	// 1 shared of 3 total tags
	partial := engine.interestsScore([]string{"travel", "music"}, []string{"travel", "hiking"})
	assert.InDelta(t, 100.0/3, partial, 0.001)

	neutral := engine.interestsScore(nil, []string{"travel"})
	assert.Equal(t, 50.0, neutral)
}

func TestActivitySubScore(t *testing.T) {
	engine := testEngine()
	now := testNow()

	assert.Equal(t, 100.0, engine.activityScore(now.Add(-48*time.Hour), now))
	assert.InDelta(t, 89.5, engine.activityScore(now.AddDate(0, 0, -10), now), 0.001)
	assert.Equal(t, 20.0, engine.activityScore(now.AddDate(-1, 0, 0), now))
}

func TestPremiumBoost(t *testing.T) {
	engine := testEngine()
	candidate := testCandidate()

	base, _ := engine.Score(testSeeker(), candidate)
	boosted, _ := engine.Score(testSeeker(func(s *SeekerContext) {
		s.Member.PremiumActive = true
	}), candidate)

	require.Less(t, boosted, 100.0)
	assert.InDelta(t, base+5, boosted, 0.001)
}

func TestPremiumBoostCappedAtHundred(t *testing.T) {
	engine := testEngine()
	assert.Equal(t, 100.0, engine.ApplyPremiumBoost(98))
	assert.Equal(t, 100.0, engine.ApplyPremiumBoost(100))
}

func TestVerificationBoost(t *testing.T) {
	engine := testEngine()
	seeker := testSeeker()

	base, _ := engine.Score(seeker, testCandidate())
	boosted, _ := engine.Score(seeker, testCandidate(func(c *CandidateContext) {
		c.Member.Verified = true
	}))

	assert.InDelta(t, base+3, boosted, 0.001)
}

// A well-aligned pair on every dimension should land comfortably above
// the mutual-recommendation threshold.
func TestHighlyCompatiblePairScoresHigh(t *testing.T) {
	engine := testEngine()
	seeker := testSeeker(func(s *SeekerContext) {
		s.Preference.Religions = []string{"hindu"}
		s.Preference.Cities = []string{"bengaluru"}
		s.Preference.EducationLevels = []string{"master", "doctorate"}
		s.Preference.Smoking = []string{"never"}
		s.Preference.Drinking = []string{"occasionally"}
		s.Preference.Diet = []string{"vegetarian"}
		s.Horoscope = &Horoscope{MoonSign: "aries"}
	})
	candidate := testCandidate(func(c *CandidateContext) {
		c.Horoscope = &Horoscope{MoonSign: "leo"}
	})

	score, subs := engine.Score(seeker, candidate)
	assert.Greater(t, score, 70.0)
	assert.Equal(t, 100.0, subs.Religion)
	assert.Equal(t, 100.0, subs.Location)
}
