package scoring

// Weights is the single table of point contributions used by the Scorer.
// Every field is a non-negative number of points added when its factor applies.
type Weights struct {
	PerDayListed  float64 `mapstructure:"per_day_listed" json:"per_day_listed"`
	DaysListedCap float64 `mapstructure:"days_listed_cap" json:"days_listed_cap"`

	NoPhotos  float64 `mapstructure:"no_photos" json:"no_photos"`
	OnePhoto  float64 `mapstructure:"one_photo" json:"one_photo"`
	TwoPhotos float64 `mapstructure:"two_photos" json:"two_photos"`

	// Descriptions shorter than ShortDescriptionChars (or absent) earn ShortDescription;
	// shorter than MediumDescriptionChars earn MediumDescription.
	ShortDescription       float64 `mapstructure:"short_description" json:"short_description"`
	ShortDescriptionChars  int     `mapstructure:"short_description_chars" json:"short_description_chars"`
	MediumDescription      float64 `mapstructure:"medium_description" json:"medium_description"`
	MediumDescriptionChars int     `mapstructure:"medium_description_chars" json:"medium_description_chars"`

	Senior float64 `mapstructure:"senior" json:"senior"`
	Adult  float64 `mapstructure:"adult" json:"adult"`

	Large      float64 `mapstructure:"large" json:"large"`
	ExtraLarge float64 `mapstructure:"extra_large" json:"extra_large"`

	UncommonBreed float64 `mapstructure:"uncommon_breed" json:"uncommon_breed"`
	MixedBreed    float64 `mapstructure:"mixed_breed" json:"mixed_breed"`

	SpecialNeeds     float64 `mapstructure:"special_needs" json:"special_needs"`
	IncompatibleWith float64 `mapstructure:"incompatible_with" json:"incompatible_with"`
	MedicalKeyword   float64 `mapstructure:"medical_keyword" json:"medical_keyword"`
	HighEnergy       float64 `mapstructure:"high_energy" json:"high_energy"`
	Male             float64 `mapstructure:"male" json:"male"`
	DarkCoat         float64 `mapstructure:"dark_coat" json:"dark_coat"`
	Rural            float64 `mapstructure:"rural" json:"rural"`
}

// DefaultWeights returns the production weight table.
func DefaultWeights() Weights {
	return Weights{
		PerDayListed:  0.25,
		DaysListedCap: 20,

		NoPhotos:  12,
		OnePhoto:  8,
		TwoPhotos: 4,

		ShortDescription:       8,
		ShortDescriptionChars:  100,
		MediumDescription:      3,
		MediumDescriptionChars: 300,

		Senior: 12,
		Adult:  5,

		Large:      4,
		ExtraLarge: 6,

		UncommonBreed: 5,
		MixedBreed:    3,

		SpecialNeeds:     8,
		IncompatibleWith: 2,
		MedicalKeyword:   5,
		HighEnergy:       3,
		Male:             2,
		DarkCoat:         5,
		Rural:            4,
	}
}
