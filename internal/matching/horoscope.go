package matching

// Moon-sign compatibility follows the classical element groupings:
// same-element and complementary-element pairs score high, opposed
// elements low. The table is symmetric by construction.

type element int

const (
	fire element = iota
	earth
	air
	water
)

var moonSignElement = map[string]element{
	"aries":       fire,
	"leo":         fire,
	"sagittarius": fire,
	"taurus":      earth,
	"virgo":       earth,
	"capricorn":   earth,
	"gemini":      air,
	"libra":       air,
	"aquarius":    air,
	"cancer":      water,
	"scorpio":     water,
	"pisces":      water,
}

// elementPairScore is indexed by the two elements in either order
var elementPairScore = map[[2]element]float64{
	{fire, fire}:   85,
	{earth, earth}: 85,
	{air, air}:     85,
	{water, water}: 85,
	{fire, air}:    80,
	{earth, water}: 80,
	{fire, water}:  35,
	{earth, air}:   45,
	{fire, earth}:  45,
	{air, water}:   40,
}

// MoonSignScore returns the categorical compatibility of two moon
// signs in [0,100], neutral for unknown signs.
func MoonSignScore(a, b string) float64 {
	ea, okA := moonSignElement[a]
	eb, okB := moonSignElement[b]
	if !okA || !okB {
		return neutralScore
	}
	if s, ok := elementPairScore[[2]element{ea, eb}]; ok {
		return s
	}
	return elementPairScore[[2]element{eb, ea}]
}

// Nakshatra gana groups for the guna-milan style blend
const (
	ganaDeva     = "deva"
	ganaManushya = "manushya"
	ganaRakshasa = "rakshasa"
)

var nakshatraGana = map[string]string{
	"ashwini":           ganaDeva,
	"mrigashira":        ganaDeva,
	"punarvasu":         ganaDeva,
	"pushya":            ganaDeva,
	"hasta":             ganaDeva,
	"swati":             ganaDeva,
	"anuradha":          ganaDeva,
	"shravana":          ganaDeva,
	"revati":            ganaDeva,
	"bharani":           ganaManushya,
	"rohini":            ganaManushya,
	"ardra":             ganaManushya,
	"purva_phalguni":    ganaManushya,
	"uttara_phalguni":   ganaManushya,
	"purva_ashadha":     ganaManushya,
	"uttara_ashadha":    ganaManushya,
	"purva_bhadrapada":  ganaManushya,
	"uttara_bhadrapada": ganaManushya,
	"krittika":          ganaRakshasa,
	"ashlesha":          ganaRakshasa,
	"magha":             ganaRakshasa,
	"chitra":            ganaRakshasa,
	"vishakha":          ganaRakshasa,
	"jyeshtha":          ganaRakshasa,
	"mula":              ganaRakshasa,
	"dhanishta":         ganaRakshasa,
	"shatabhisha":       ganaRakshasa,
}

// gunaPoints out of 36, by gana pairing. Same gana is the classical
// best case; deva-rakshasa the worst.
var gunaPoints = map[[2]string]float64{
	{ganaDeva, ganaDeva}:         30,
	{ganaManushya, ganaManushya}: 30,
	{ganaRakshasa, ganaRakshasa}: 28,
	{ganaDeva, ganaManushya}:     24,
	{ganaManushya, ganaRakshasa}: 18,
	{ganaDeva, ganaRakshasa}:     12,
}

func gunaScore(a, b string) float64 {
	ga, okA := nakshatraGana[a]
	gb, okB := nakshatraGana[b]
	if !okA || !okB {
		return neutralScore
	}
	points, ok := gunaPoints[[2]string{ga, gb}]
	if !ok {
		points = gunaPoints[[2]string{gb, ga}]
	}
	return points / 36 * fullScore
}

// HoroscopeScore blends moon-sign and guna-milan compatibility when
// both sides provide horoscope data; neutral otherwise.
func HoroscopeScore(seeker, candidate *Horoscope) float64 {
	if seeker == nil || candidate == nil {
		return neutralScore
	}
	if seeker.MoonSign == "" || candidate.MoonSign == "" {
		return neutralScore
	}

	moon := MoonSignScore(seeker.MoonSign, candidate.MoonSign)
	if seeker.Nakshatra == "" || candidate.Nakshatra == "" {
		return moon
	}
	return moon*0.6 + gunaScore(seeker.Nakshatra, candidate.Nakshatra)*0.4
}
