package viz

import (
	"time"

	"malariawatch/pkg/contracts/domain"
)

// ColorStop is one anchor of a continuous color scale.
type ColorStop struct {
	Position float64 `json:"position"`
	Color    string  `json:"color"`
}

// PinkPurpleScale is the continuous scale used by choropleth maps and
// ranking bars, light pink through deep purple.
var PinkPurpleScale = []ColorStop{
	{Position: 0.0, Color: "#fce4ec"},
	{Position: 0.2, Color: "#f8bbd9"},
	{Position: 0.4, Color: "#e91e63"},
	{Position: 0.6, Color: "#ad1457"},
	{Position: 0.8, Color: "#7b1fa2"},
	{Position: 1.0, Color: "#4a148c"},
}

// HarmonizedColors cycles through trend lines so up to ten units stay
// visually distinct.
var HarmonizedColors = []string{
	"#1f77b4", "#17becf", "#2ca02c", "#ff7f0e", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#d62728",
}

// ProvinceColors maps province names, including their aliases, to fixed
// scatter colors.
var ProvinceColors = map[string]string{
	"Kigali City":      "#D62828",
	"Northern":         "#3A0CA3",
	"Southern":         "#2A9D8F",
	"Eastern":          "#F4A261",
	"Western":          "#577590",
	"Western Province": "#577590",
	"East":             "#F4A261",
	"North":            "#3A0CA3",
	"South":            "#2A9D8F",
	"West":             "#577590",
}

// NoDataColor fills units that have a boundary but no observation.
const NoDataColor = "#2b2b2b"

// DefaultProvinceColor is used when a province name has no fixed color.
const DefaultProvinceColor = "#ffffff"

// Map framing for Rwanda.
const (
	MapCenterLat = -1.9
	MapCenterLon = 29.9
	MapZoom      = 6.8
	MapStyle     = "carto-darkmatter"
)

// Layout carries the shared dark theme applied to every figure.
type Layout struct {
	PlotBackground  string `json:"plot_bgcolor"`
	PaperBackground string `json:"paper_bgcolor"`
	FontColor       string `json:"font_color"`
	Height          int    `json:"height"`
	TitleSize       int    `json:"title_size"`
}

// DarkLayout returns the standard dark layout at a given height.
func DarkLayout(height, titleSize int) Layout {
	return Layout{
		PlotBackground:  "rgba(0,0,0,0)",
		PaperBackground: "rgba(0,0,0,0)",
		FontColor:       "white",
		Height:          height,
		TitleSize:       titleSize,
	}
}

// ProvinceColor resolves a province's scatter color.
func ProvinceColor(province string) string {
	if c, ok := ProvinceColors[province]; ok {
		return c
	}
	return DefaultProvinceColor
}

// TrendColor assigns the i-th selected unit its line color.
func TrendColor(i int) string {
	return HarmonizedColors[i%len(HarmonizedColors)]
}

// monthShort abbreviates a month for chart titles.
func monthShort(m time.Month) string {
	return m.String()[:3]
}

// canonicalProvince folds Kinyarwanda aliases into the English names the
// color table uses.
func canonicalProvince(p string) string {
	if p == "Iburengerazuba" {
		return "Western Province"
	}
	return p
}

// entityLabel names the unit kind for a level's chart titles.
func entityLabel(level domain.Level, plural bool) string {
	switch level {
	case domain.LevelSector:
		if plural {
			return "Sectors"
		}
		return "Sector"
	default:
		if plural {
			return "Districts"
		}
		return "District"
	}
}
