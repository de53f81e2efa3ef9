package models

// AreaDocument is the region metadata document served by the JMA area endpoint
type AreaDocument struct {
	Centers map[string]Center `json:"centers"`
	Offices map[string]Office `json:"offices"`
}

// Center groups forecast offices under a regional meteorological center
type Center struct {
	Name       string   `json:"name"`
	EnName     string   `json:"enName"`
	OfficeName string   `json:"officeName"`
	Children   []string `json:"children"`
}

type Office struct {
	Name       *string  `json:"name"`
	EnName     string   `json:"enName"`
	OfficeName string   `json:"officeName"`
	Parent     string   `json:"parent"`
	Children   []string `json:"children"`
}

// RegionNode is one selectable region, built once per session from the area document
type RegionNode struct {
	Code            string `json:"code"`
	DisplayName     string `json:"display_name"`
	ParentGroupCode string `json:"parent_group_code"`
}

// ForecastSection is one element of the forecast document array.
// The first section carries the near-term weather/wind/wave blocks.
type ForecastSection struct {
	PublishingOffice string       `json:"publishingOffice"`
	ReportDatetime   string       `json:"reportDatetime"`
	TimeSeries       []TimeSeries `json:"timeSeries"`
}

// TimeSeries is a block of areas whose arrays are index-aligned with TimeDefines
type TimeSeries struct {
	TimeDefines []string     `json:"timeDefines"`
	Areas       []SeriesArea `json:"areas"`
}

// SeriesArea holds the per-area arrays of a time series block.
// A nil slice means the field was absent from the document.
type SeriesArea struct {
	Area     AreaRef  `json:"area"`
	Weathers []string `json:"weathers"`
	Winds    []string `json:"winds"`
	Waves    []string `json:"waves"`
	TempsMin []string `json:"tempsMin"`
	TempsMax []string `json:"tempsMax"`
}

type AreaRef struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// HasTemperatures reports whether the area carries both min and max temperature arrays
func (a SeriesArea) HasTemperatures() bool {
	return a.TempsMin != nil && a.TempsMax != nil
}

// ForecastRecord is one normalized row of the weather_forecast table
type ForecastRecord struct {
	ID         int64    `json:"id"`
	RegionCode string   `json:"area_code"`
	RegionName string   `json:"area_name"`
	Timestamp  string   `json:"forecast_time"`
	Weather    *string  `json:"weather"`
	Wind       *string  `json:"wind"`
	Wave       *string  `json:"wave"`
	MinTemp    *float64 `json:"min_temp"`
	MaxTemp    *float64 `json:"max_temp"`
}

// TemperatureObservation merges temperature bounds for a single raw timestamp
type TemperatureObservation struct {
	Timestamp string
	Min       *float64
	Max       *float64
}
