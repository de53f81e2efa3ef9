package normalizer

import "strings"

// weatherReplacer rewrites JMA weather vocabulary into pictographs in a single
// pass, so no replacement output is ever rescanned.
var weatherReplacer = strings.NewReplacer(
	"くもり", "☁️",
	"雪", "⛄️",
	"晴れ", "☀️",
	"雷", "⚡️",
	"雨", "☔️",
	"〜", "→",
	"朝晩", "/",
)

// ConvertWeatherText applies the pictograph substitution table to a JMA weather phrase
func ConvertWeatherText(text string) string {
	return weatherReplacer.Replace(text)
}
