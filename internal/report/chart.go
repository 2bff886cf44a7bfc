// Package report renders analysis runs as HTML pages with inline SVG charts,
// plain-text summaries and a batch index page.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// SVG Charts
// ════════════════════════════════════════════════════════════════════

// ChartConfig holds rendering parameters for SVG charts.
type ChartConfig struct {
	Width        int    // SVG width in pixels (default: 800)
	Height       int    // SVG height in pixels (default: 400)
	MarginTop    int    // top margin (default: 40)
	MarginRight  int    // right margin (default: 60)
	MarginBottom int    // bottom margin (default: 50)
	MarginLeft   int    // left margin (default: 70)
	BgColor      string // background color (default: "#ffffff")
	GridColor    string // grid line color (default: "#e8e8e8")
	TextColor    string // axis label color (default: "#333333")
	FontSize     int    // axis label font size (default: 11)
	Title        string // chart title
	History      int    // closes shown before the forecast (default: 90)
}

// DefaultChartConfig returns sensible defaults for chart rendering.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:        800,
		Height:       400,
		MarginTop:    40,
		MarginRight:  60,
		MarginBottom: 50,
		MarginLeft:   70,
		BgColor:      "#ffffff",
		GridColor:    "#e8e8e8",
		TextColor:    "#333333",
		FontSize:     11,
		History:      90,
	}
}

// plotArea returns the usable drawing area dimensions.
func (c ChartConfig) plotArea() (x, y, w, h int) {
	return c.MarginLeft, c.MarginTop,
		c.Width - c.MarginLeft - c.MarginRight,
		c.Height - c.MarginTop - c.MarginBottom
}

// scale maps values and indices onto the plot area.
type scale struct {
	px, py, pw, ph int
	minVal, vRange float64
	n              int
}

func newScale(cfg ChartConfig, minVal, maxVal float64, n int) scale {
	px, py, pw, ph := cfg.plotArea()
	vRange := maxVal - minVal
	if vRange < 0.001 {
		vRange = 1
	}
	minVal -= vRange * 0.05
	maxVal += vRange * 0.05
	return scale{px: px, py: py, pw: pw, ph: ph, minVal: minVal, vRange: maxVal - minVal, n: n}
}

func (s scale) x(i int) float64 {
	if s.n <= 1 {
		return float64(s.px)
	}
	return float64(s.px) + float64(i)*float64(s.pw)/float64(s.n-1)
}

func (s scale) y(v float64) float64 {
	return float64(s.py+s.ph) - (v-s.minVal)/s.vRange*float64(s.ph)
}

// ── Line Chart ──

// LineChartSeries is one named line.
type LineChartSeries struct {
	Name   string
	Values []float64 // NaN leaves a gap
	Color  string
}

// LineChart draws one or more series over shared x labels.
func LineChart(series []LineChartSeries, labels []string, cfg ChartConfig) string {
	if len(series) == 0 {
		return emptySVG(cfg, "No data")
	}
	if cfg.Width == 0 {
		cfg = DefaultChartConfig()
	}
	if cfg.Title == "" {
		cfg.Title = "Line Chart"
	}

	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	maxLen := 0
	for _, s := range series {
		maxLen = max(maxLen, len(s.Values))
		for _, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if maxLen == 0 || minVal > maxVal {
		return emptySVG(cfg, "No data points")
	}
	sc := newScale(cfg, minVal, maxVal, maxLen)

	var sb strings.Builder
	writeFrame(&sb, cfg, sc)
	for si, s := range series {
		color := s.Color
		if color == "" {
			color = palette[si%len(palette)]
		}
		writePath(&sb, sc, s.Values, 0, color, "")
		writeLegend(&sb, cfg, sc, si, s.Name, color)
	}
	writeXLabels(&sb, cfg, sc, labels)
	sb.WriteString("</svg>")
	return sb.String()
}

// ── Forecast Chart ──

// ForecastChart draws the recent closes followed by the ensemble mean and
// its lower/upper band, plus a dashed line per member model.
func ForecastChart(prices models.PriceSeries, fc *models.EnsembleForecast, cfg ChartConfig) string {
	if cfg.Width == 0 {
		cfg = DefaultChartConfig()
	}
	if cfg.Title == "" {
		cfg.Title = "Price History and Forecast"
	}
	if cfg.History <= 0 {
		cfg.History = 90
	}
	hist := prices.Tail(cfg.History)
	if hist.Len() == 0 {
		return emptySVG(cfg, "No price data")
	}

	closes := hist.Closes()
	labels := hist.Dates()
	steps := 0
	if fc != nil {
		steps = len(fc.Steps)
		for i := 1; i <= steps; i++ {
			labels = append(labels, fmt.Sprintf("+%d", i))
		}
	}
	n := len(closes) + steps

	minVal, maxVal := closes[0], closes[0]
	for _, v := range closes {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if fc != nil {
		for _, p := range fc.Steps {
			minVal = math.Min(minVal, p.Lower)
			maxVal = math.Max(maxVal, p.Upper)
		}
	}
	sc := newScale(cfg, minVal, maxVal, n)

	var sb strings.Builder
	writeFrame(&sb, cfg, sc)

	offset := len(closes) - 1
	if fc != nil && steps > 0 {
		// Band polygon: upper edge left to right, lower edge back.
		pts := []string{fmt.Sprintf("%.1f,%.1f", sc.x(offset), sc.y(closes[offset]))}
		for i, p := range fc.Steps {
			pts = append(pts, fmt.Sprintf("%.1f,%.1f", sc.x(offset+i+1), sc.y(p.Upper)))
		}
		for i := steps - 1; i >= 0; i-- {
			pts = append(pts, fmt.Sprintf("%.1f,%.1f", sc.x(offset+i+1), sc.y(fc.Steps[i].Lower)))
		}
		sb.WriteString(fmt.Sprintf(`<polygon points="%s" fill="#2196f3" fill-opacity="0.15" stroke="none"/>`,
			strings.Join(pts, " ")))

		// Boundary between history and forecast.
		bx := sc.x(offset)
		sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="%d" x2="%.1f" y2="%d" stroke="#999" stroke-dasharray="4,4"/>`,
			bx, sc.py, bx, sc.py+sc.ph))
	}

	writePath(&sb, sc, closes, 0, "#333333", "")
	writeLegend(&sb, cfg, sc, 0, "Close", "#333333")

	if fc != nil && steps > 0 {
		for mi, m := range fc.Members {
			vals := []float64{closes[offset]}
			for _, p := range m.Points {
				vals = append(vals, p.Value)
			}
			color := palette[(mi+2)%len(palette)]
			writePath(&sb, sc, vals, offset, color, "5,3")
			writeLegend(&sb, cfg, sc, mi+2, m.Model, color)
		}
		mean := []float64{closes[offset]}
		for _, p := range fc.Steps {
			mean = append(mean, p.Value)
		}
		writePath(&sb, sc, mean, offset, "#2196f3", "")
		writeLegend(&sb, cfg, sc, 1, "Ensemble", "#2196f3")
	}

	writeXLabels(&sb, cfg, sc, labels)
	sb.WriteString("</svg>")
	return sb.String()
}

// ── Horizontal Bar Chart ──

// BarItem is one bar of a horizontal bar chart.
type BarItem struct {
	Label string
	Value float64
	Color string
}

// HorizontalBarChart draws labelled bars; negative values extend left of a
// zero line. Used for expected returns per model.
func HorizontalBarChart(items []BarItem, cfg ChartConfig) string {
	if len(items) == 0 {
		return emptySVG(cfg, "No data")
	}
	if cfg.Width == 0 {
		cfg = DefaultChartConfig()
	}
	cfg.Height = cfg.MarginTop + cfg.MarginBottom + len(items)*32
	px, py, pw, ph := cfg.plotArea()

	minVal, maxVal := 0.0, 0.0
	for _, it := range items {
		minVal = math.Min(minVal, it.Value)
		maxVal = math.Max(maxVal, it.Value)
	}
	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1
	}
	zeroX := float64(px) + (-minVal/valRange)*float64(pw)

	barH := float64(ph)/float64(len(items)) - 8
	if barH < 6 {
		barH = 6
	}

	var sb strings.Builder
	sb.WriteString(svgHeader(cfg))
	sb.WriteString(fmt.Sprintf(`<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, cfg.Width, cfg.Height, cfg.BgColor))
	if cfg.Title != "" {
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="20" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
			cfg.Width/2, cfg.TextColor, escapeXML(cfg.Title)))
	}
	sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="%d" x2="%.1f" y2="%d" stroke="#999" stroke-width="1"/>`,
		zeroX, py, zeroX, py+ph))

	for i, it := range items {
		by := float64(py) + 4 + float64(i)*(barH+8)
		color := it.Color
		if color == "" {
			color = "#4caf50"
			if it.Value < 0 {
				color = "#ef5350"
			}
		}
		bw := math.Abs(it.Value) / valRange * float64(pw)
		bx := zeroX
		if it.Value < 0 {
			bx = zeroX - bw
		}
		sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" rx="2"/>`,
			bx, by, bw, barH, color))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			px-5, by+barH/2+4, cfg.FontSize, cfg.TextColor, escapeXML(it.Label)))
		sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" font-size="%d" fill="%s">%+.2f%%</text>`,
			math.Max(bx+bw, zeroX)+5, by+barH/2+4, cfg.FontSize, cfg.TextColor, it.Value))
	}
	sb.WriteString("</svg>")
	return sb.String()
}

// ── Gauge ──

// confidenceScore places a confidence label on the gauge.
func confidenceScore(label string) float64 {
	switch label {
	case models.ConfidenceHigh:
		return 85
	case models.ConfidenceMedium:
		return 55
	case models.ConfidenceLow:
		return 25
	}
	return 0
}

// GaugeChart draws a semicircular 0-100 gauge.
func GaugeChart(value float64, label string, width int) string {
	if width == 0 {
		width = 200
	}
	height := width/2 + 30

	cx := float64(width) / 2
	cy := float64(width)/2 - 10
	radius := float64(width)/2 - 20

	value = math.Max(0, math.Min(100, value))

	// 0 maps to 180° (left), 100 to 0° (right).
	angle := math.Pi - (value/100)*math.Pi
	needleX := cx + radius*0.85*math.Cos(angle)
	needleY := cy - radius*0.85*math.Sin(angle)

	var color string
	switch {
	case value < 30:
		color = "#ef5350"
	case value < 50:
		color = "#ff9800"
	case value < 70:
		color = "#ffc107"
	default:
		color = "#4caf50"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, height, width, height))
	sb.WriteString(fmt.Sprintf(`<rect width="%d" height="%d" fill="white"/>`, width, height))
	sb.WriteString(fmt.Sprintf(`<path d="M%.1f,%.1f A%.1f,%.1f 0 0,1 %.1f,%.1f" fill="none" stroke="#e0e0e0" stroke-width="12" stroke-linecap="round"/>`,
		cx-radius, cy, radius, radius, cx+radius, cy))

	endX := cx + radius*math.Cos(angle)
	endY := cy - radius*math.Sin(angle)
	sb.WriteString(fmt.Sprintf(`<path d="M%.1f,%.1f A%.1f,%.1f 0 0,1 %.1f,%.1f" fill="none" stroke="%s" stroke-width="12" stroke-linecap="round"/>`,
		cx-radius, cy, radius, radius, endX, endY, color))

	sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#333" stroke-width="2"/>`,
		cx, cy, needleX, needleY))
	sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="5" fill="#333"/>`, cx, cy))
	sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%d" font-size="11" fill="#666" text-anchor="middle">%s</text>`,
		cx, height-5, escapeXML(label)))
	sb.WriteString("</svg>")
	return sb.String()
}

// ════════════════════════════════════════════════════════════════════
// SVG helpers
// ════════════════════════════════════════════════════════════════════

var palette = []string{"#333333", "#2196f3", "#ff9800", "#4caf50", "#e91e63", "#9c27b0", "#00bcd4"}

func writeFrame(sb *strings.Builder, cfg ChartConfig, sc scale) {
	sb.WriteString(svgHeader(cfg))
	sb.WriteString(fmt.Sprintf(`<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, cfg.Width, cfg.Height, cfg.BgColor))
	sb.WriteString(fmt.Sprintf(`<text x="%d" y="20" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
		cfg.Width/2, cfg.TextColor, escapeXML(cfg.Title)))

	const gridLines = 5
	for i := 0; i <= gridLines; i++ {
		val := sc.minVal + sc.vRange*float64(i)/gridLines
		y := sc.py + sc.ph - int(float64(sc.ph)*float64(i)/gridLines)
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-dasharray="3,3"/>`,
			sc.px, y, sc.px+sc.pw, y, cfg.GridColor))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			sc.px-5, y+4, cfg.FontSize, cfg.TextColor, formatUSD(val)))
	}
}

// writePath draws values starting at x index `from`.
func writePath(sb *strings.Builder, sc scale, values []float64, from int, color, dash string) {
	var parts []string
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		cmd := "L"
		if len(parts) == 0 {
			cmd = "M"
		}
		parts = append(parts, fmt.Sprintf("%s%.1f,%.1f", cmd, sc.x(from+i), sc.y(v)))
	}
	if len(parts) < 2 {
		return
	}
	extra := ""
	if dash != "" {
		extra = fmt.Sprintf(` stroke-dasharray="%s"`, dash)
	}
	sb.WriteString(fmt.Sprintf(`<path d="%s" fill="none" stroke="%s" stroke-width="2"%s/>`,
		strings.Join(parts, " "), color, extra))
}

func writeLegend(sb *strings.Builder, cfg ChartConfig, sc scale, row int, name, color string) {
	ly := sc.py + 10 + row*16
	sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2"/>`,
		sc.px+10, ly, sc.px+30, ly, color))
	sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="10" fill="%s">%s</text>`,
		sc.px+35, ly+4, cfg.TextColor, escapeXML(name)))
}

func writeXLabels(sb *strings.Builder, cfg ChartConfig, sc scale, labels []string) {
	if len(labels) == 0 {
		return
	}
	interval := max(len(labels)/6, 1)
	for i := 0; i < len(labels); i += interval {
		sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="middle">%s</text>`,
			sc.x(i), sc.py+sc.ph+18, cfg.FontSize, cfg.TextColor, escapeXML(labels[i])))
	}
}

func svgHeader(cfg ChartConfig) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif">`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
}

func emptySVG(cfg ChartConfig, msg string) string {
	if cfg.Width == 0 {
		cfg.Width = 400
	}
	if cfg.Height == 0 {
		cfg.Height = 200
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="%d" height="%d" fill="#f5f5f5"/><text x="%d" y="%d" text-anchor="middle" fill="#999" font-size="14">%s</text></svg>`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.Width/2, cfg.Height/2, escapeXML(msg))
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
