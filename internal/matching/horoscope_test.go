package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoonSignSameElementScoresHigh(t *testing.T) {
	assert.Greater(t, MoonSignScore("aries", "leo"), 70.0)
	assert.Greater(t, MoonSignScore("taurus", "virgo"), 70.0)
	assert.Greater(t, MoonSignScore("cancer", "pisces"), 70.0)
}

func TestMoonSignOpposedElementScoresLow(t *testing.T) {
	assert.Less(t, MoonSignScore("aries", "cancer"), 50.0)
	assert.Less(t, MoonSignScore("leo", "scorpio"), 50.0)
}

func TestMoonSignComplementaryElements(t *testing.T) {
	assert.Equal(t, 80.0, MoonSignScore("aries", "gemini"))
	assert.Equal(t, 80.0, MoonSignScore("taurus", "cancer"))
}

func TestMoonSignSymmetric(t *testing.T) {
	signs := []string{"aries", "taurus", "gemini", "cancer", "leo", "virgo",
		"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces"}
	for _, a := range signs {
		for _, b := range signs {
			assert.Equal(t, MoonSignScore(a, b), MoonSignScore(b, a), "%s/%s", a, b)
		}
	}
}

func TestMoonSignUnknownIsNeutral(t *testing.T) {
	assert.Equal(t, 50.0, MoonSignScore("ophiuchus", "leo"))
	assert.Equal(t, 50.0, MoonSignScore("", ""))
}

func TestHoroscopeScoreMissingDataIsNeutral(t *testing.T) {
	assert.Equal(t, 50.0, HoroscopeScore(nil, nil))
	assert.Equal(t, 50.0, HoroscopeScore(&Horoscope{MoonSign: "aries"}, nil))
	assert.Equal(t, 50.0, HoroscopeScore(&Horoscope{}, &Horoscope{MoonSign: "leo"}))
}

func TestHoroscopeScoreMoonOnly(t *testing.T) {
	got := HoroscopeScore(&Horoscope{MoonSign: "aries"}, &Horoscope{MoonSign: "leo"})
	assert.Equal(t, 85.0, got)
}

func TestHoroscopeScoreBlendsGuna(t *testing.T) {
	a := &Horoscope{MoonSign: "aries", Nakshatra: "ashwini"}
	b := &Horoscope{MoonSign: "leo", Nakshatra: "pushya"}

	// moon 85, guna 30/36 of 100
	want := 85*0.6 + (30.0/36)*100*0.4
	assert.InDelta(t, want, HoroscopeScore(a, b), 0.001)
}

func TestHoroscopeScoreSymmetric(t *testing.T) {
	a := &Horoscope{MoonSign: "cancer", Nakshatra: "krittika"}
	b := &Horoscope{MoonSign: "sagittarius", Nakshatra: "revati"}
	assert.Equal(t, HoroscopeScore(a, b), HoroscopeScore(b, a))
}
