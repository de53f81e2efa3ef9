// Package normalizer flattens JMA forecast sections into per-timestamp records.
//
// A forecast document holds several sections, each with time series blocks
// whose per-area arrays are index-aligned with the block's timeDefines.
// Weather, wind and wave text come from the first section only; temperature
// bounds may come from any block of any section and are joined to records by
// exact timestamp string.
package normalizer

import (
	"log"
	"strconv"
	"strings"

	"tenki/internal/area"
	"tenki/internal/metrics"
	"tenki/internal/models"
)

// TemperatureMap holds merged min/max bounds keyed by raw timestamp
type TemperatureMap map[string]*models.TemperatureObservation

// BuildTemperatureMap scans every block of every section that carries both
// tempsMin and tempsMax. A later non-empty value replaces an earlier one.
func BuildTemperatureMap(sections []models.ForecastSection) TemperatureMap {
	temps := TemperatureMap{}

	for _, section := range sections {
		for _, series := range section.TimeSeries {
			for _, a := range series.Areas {
				if !a.HasTemperatures() {
					continue
				}

				for idx, ts := range series.TimeDefines {
					obs, ok := temps[ts]
					if !ok {
						obs = &models.TemperatureObservation{Timestamp: ts}
						temps[ts] = obs
					}

					if v := parseTemp(a.TempsMin, idx); v != nil {
						obs.Min = v
					}
					if v := parseTemp(a.TempsMax, idx); v != nil {
						obs.Max = v
					}
				}
			}
		}
	}

	return temps
}

// Normalize produces one record per (area, timestamp) of the first section's
// blocks, in walk order. Sorting is left to the store.
func Normalize(regionCode string, sections []models.ForecastSection) []models.ForecastRecord {
	if len(sections) == 0 {
		return nil
	}

	temps := BuildTemperatureMap(sections)

	var records []models.ForecastRecord
	for _, series := range sections[0].TimeSeries {
		for _, a := range series.Areas {
			name := areaName(a.Area)

			for idx, ts := range series.TimeDefines {
				rec := models.ForecastRecord{
					RegionCode: regionCode,
					RegionName: name,
					Timestamp:  ts,
					Wind:       at(a.Winds, idx),
					Wave:       at(a.Waves, idx),
				}

				if w := at(a.Weathers, idx); w != nil {
					converted := ConvertWeatherText(*w)
					rec.Weather = &converted
				}

				if obs, ok := temps[ts]; ok {
					rec.MinTemp = copyFloat(obs.Min)
					rec.MaxTemp = copyFloat(obs.Max)
				}

				records = append(records, rec)
			}
		}
	}

	metrics.RecordsNormalizedTotal.Add(float64(len(records)))
	return records
}

func areaName(ref models.AreaRef) string {
	if ref.Name != "" {
		return ref.Name
	}
	if ref.Code != "" {
		return ref.Code
	}
	return area.UnknownName
}

// at returns a copy of values[idx], or nil when idx is past the end
func at(values []string, idx int) *string {
	if idx >= len(values) {
		return nil
	}
	v := values[idx]
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// parseTemp treats empty or unparsable entries as absent
func parseTemp(values []string, idx int) *float64 {
	if idx >= len(values) {
		return nil
	}
	s := strings.TrimSpace(values[idx])
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Printf("ignoring unparsable temperature %q: %v", s, err)
		return nil
	}
	return &v
}
