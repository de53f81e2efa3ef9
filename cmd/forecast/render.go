package main

import (
	"fmt"
	"io"
	"strconv"

	"tenki/internal/area"
	"tenki/internal/models"
)

// printGroups writes the region tree, one center per block
func printGroups(w io.Writer, groups []area.Group) {
	for _, g := range groups {
		if g.EnName != "" {
			fmt.Fprintf(w, "%s (%s)\n", g.Name, g.EnName)
		} else {
			fmt.Fprintln(w, g.Name)
		}
		for _, r := range g.Regions {
			fmt.Fprintf(w, "  %s (%s)\n", r.DisplayName, r.Code)
		}
	}
}

// printCards writes one card per record, omitting absent fields
func printCards(w io.Writer, code, name string, records []models.ForecastRecord) {
	fmt.Fprintf(w, "エリアコード %s の天気情報: %s\n", code, name)
	for _, r := range records {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "日時: %s\n", r.Timestamp)
		if r.Weather != nil && *r.Weather != "" {
			fmt.Fprintf(w, "  天気: %s\n", *r.Weather)
		}
		if r.Wind != nil && *r.Wind != "" {
			fmt.Fprintf(w, "  風: %s\n", *r.Wind)
		}
		if r.Wave != nil && *r.Wave != "" {
			fmt.Fprintf(w, "  波: %s\n", *r.Wave)
		}
		if r.MinTemp != nil {
			fmt.Fprintf(w, "  最低気温: %s°C\n", formatTemp(*r.MinTemp))
		}
		if r.MaxTemp != nil {
			fmt.Fprintf(w, "  最高気温: %s°C\n", formatTemp(*r.MaxTemp))
		}
	}
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
