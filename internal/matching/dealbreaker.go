package matching

import "time"

// Deal breaker dimension names accepted in Preference.DealBreakers
const (
	DimensionAge       = "age"
	DimensionReligion  = "religion"
	DimensionLocation  = "location"
	DimensionEducation = "education"
	DimensionLifestyle = "lifestyle"
)

// DealBreakerFilter short-circuits scoring when a hard constraint the
// seeker declared non-negotiable is violated. Runs before sub-scoring.
type DealBreakerFilter struct {
	checks map[string]func(*SeekerContext, *CandidateContext, time.Time) bool
}

func NewDealBreakerFilter() *DealBreakerFilter {
	f := &DealBreakerFilter{}
	f.checks = map[string]func(*SeekerContext, *CandidateContext, time.Time) bool{
		DimensionAge:       f.ageViolated,
		DimensionReligion:  f.religionViolated,
		DimensionLocation:  f.locationViolated,
		DimensionEducation: f.educationViolated,
		DimensionLifestyle: f.lifestyleViolated,
	}
	return f
}

// Violates reports whether any declared deal-breaker dimension fails
// its hard constraint for the candidate.
func (f *DealBreakerFilter) Violates(seeker *SeekerContext, candidate *CandidateContext, now time.Time) bool {
	for _, dimension := range seeker.Preference.DealBreakers {
		check, ok := f.checks[dimension]
		if !ok {
			continue
		}
		if check(seeker, candidate, now) {
			return true
		}
	}
	return false
}

func (f *DealBreakerFilter) ageViolated(seeker *SeekerContext, candidate *CandidateContext, now time.Time) bool {
	age := candidate.Member.Age(now)
	return age < seeker.Preference.MinAge || age > seeker.Preference.MaxAge
}

func (f *DealBreakerFilter) religionViolated(seeker *SeekerContext, candidate *CandidateContext, _ time.Time) bool {
	pref := seeker.Preference.Religions
	return len(pref) > 0 && !contains(pref, candidate.Profile.Religion)
}

func (f *DealBreakerFilter) locationViolated(seeker *SeekerContext, candidate *CandidateContext, _ time.Time) bool {
	cities, countries := seeker.Preference.Cities, seeker.Preference.Countries
	if len(cities) == 0 && len(countries) == 0 {
		return false
	}
	return !contains(cities, candidate.Profile.City) && !contains(countries, candidate.Profile.Country)
}

func (f *DealBreakerFilter) educationViolated(seeker *SeekerContext, candidate *CandidateContext, _ time.Time) bool {
	pref := seeker.Preference.EducationLevels
	return len(pref) > 0 && !contains(pref, candidate.Profile.EducationLevel)
}

func (f *DealBreakerFilter) lifestyleViolated(seeker *SeekerContext, candidate *CandidateContext, _ time.Time) bool {
	p := seeker.Preference
	c := candidate.Profile
	return lifestyleDimensionScore(p.Smoking, c.Smoking) == 0 ||
		lifestyleDimensionScore(p.Drinking, c.Drinking) == 0 ||
		lifestyleDimensionScore(p.Diet, c.Diet) == 0
}
