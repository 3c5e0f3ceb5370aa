// Package scoring computes the visibility score used to rank dogs.
//
// A higher score means a dog is more likely to be overlooked by adopters, so
// results are sorted by descending score. The score is a pure function of the
// record and the injected clock, bounded to [0, 100].
package scoring

import (
	"math"
	"strings"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// MaxScore is the upper bound of a visibility score.
const MaxScore = 100

// Factor names reported by Breakdown.
const (
	FactorDaysListed   = "days_listed"
	FactorPhotos       = "photos"
	FactorDescription  = "description"
	FactorAge          = "age"
	FactorSize         = "size"
	FactorBreed        = "breed"
	FactorSpecialNeeds = "special_needs"
	FactorIncompatible = "incompatible_with"
	FactorMedical      = "medical_keyword"
	FactorHighEnergy   = "high_energy"
	FactorMale         = "male"
	FactorDarkCoat     = "dark_coat"
	FactorRural        = "rural"
)

// Contribution is one factor's share of a score.
type Contribution struct {
	Factor string  `json:"factor"`
	Points float64 `json:"points"`
}

// Breakdown explains a score.
type Breakdown struct {
	Score         float64        `json:"score"`
	Contributions []Contribution `json:"contributions"`
}

// Scorer computes visibility scores.
type Scorer struct {
	weights Weights
	clock   animal.Clock
}

// New creates a Scorer. A zero Weights value selects DefaultWeights.
func New(weights Weights, clock animal.Clock) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights, clock: clock}
}

// Weights returns the table in use.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score returns the clamped visibility score for a record.
func (s *Scorer) Score(a animal.Animal) float64 {
	return s.Breakdown(a).Score
}

// Apply returns the record with its score filled in.
func (s *Scorer) Apply(a animal.Animal) animal.Animal {
	a.VisibilityScore = s.Score(a)
	return a
}

// Breakdown returns the score with the contribution of every factor that applied.
func (s *Scorer) Breakdown(a animal.Animal) Breakdown {
	w := s.weights
	var parts []Contribution
	add := func(factor string, points float64) {
		if points > 0 {
			parts = append(parts, Contribution{Factor: factor, Points: points})
		}
	}

	add(FactorDaysListed, math.Min(s.daysListed(a)*w.PerDayListed, w.DaysListedCap))

	switch len(a.Photos) {
	case 0:
		add(FactorPhotos, w.NoPhotos)
	case 1:
		add(FactorPhotos, w.OnePhoto)
	case 2:
		add(FactorPhotos, w.TwoPhotos)
	}

	descLen := len([]rune(strings.TrimSpace(a.Description)))
	switch {
	case descLen < w.ShortDescriptionChars:
		add(FactorDescription, w.ShortDescription)
	case descLen < w.MediumDescriptionChars:
		add(FactorDescription, w.MediumDescription)
	}

	switch a.Age {
	case animal.AgeSenior:
		add(FactorAge, w.Senior)
	case animal.AgeAdult:
		add(FactorAge, w.Adult)
	}

	switch a.Size {
	case animal.SizeExtraLarge:
		add(FactorSize, w.ExtraLarge)
	case animal.SizeLarge:
		add(FactorSize, w.Large)
	}

	switch {
	case a.Breed.Mixed:
		add(FactorBreed, w.MixedBreed)
	case !IsPopularBreed(a.Breed.Primary):
		add(FactorBreed, w.UncommonBreed)
	}

	if a.Attributes.SpecialNeeds.IsTrue() {
		add(FactorSpecialNeeds, w.SpecialNeeds)
	}

	incompatible := 0
	for _, flag := range []animal.Tri{a.Compatibility.Children, a.Compatibility.Dogs, a.Compatibility.Cats} {
		if flag.IsFalse() {
			incompatible++
		}
	}
	add(FactorIncompatible, float64(incompatible)*w.IncompatibleWith)

	if HasMedicalKeyword(a.Description) {
		add(FactorMedical, w.MedicalKeyword)
	}
	if strings.EqualFold(strings.TrimSpace(a.EnergyLevel), "high") {
		add(FactorHighEnergy, w.HighEnergy)
	}
	if a.Gender == animal.GenderMale {
		add(FactorMale, w.Male)
	}
	if IsDarkCoat(a.CoatColor) {
		add(FactorDarkCoat, w.DarkCoat)
	}
	if IsRural(a.Location) {
		add(FactorRural, w.Rural)
	}

	var total float64
	for _, p := range parts {
		total += p.Points
	}
	return Breakdown{Score: clamp(total), Contributions: parts}
}

func (s *Scorer) daysListed(a animal.Animal) float64 {
	since := a.PublishedAt
	if since.IsZero() {
		since = a.LastUpdated
	}
	if since.IsZero() || s.clock == nil {
		return 0
	}
	days := s.clock.Now().Sub(since).Hours() / 24
	if days < 0 {
		return 0
	}
	return math.Floor(days)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return math.Round(v*10) / 10
}
