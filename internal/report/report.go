package report

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/seenimoa/stockpilot/internal/agent/prompts"
	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// ErrNilRun is returned when asked to render nothing.
var ErrNilRun = errors.New("report: run is nil")

// ════════════════════════════════════════════════════════════════════
// Configuration
// ════════════════════════════════════════════════════════════════════

// ReportConfig controls report generation behaviour.
type ReportConfig struct {
	Title     string      // index page title
	ChartCfg  ChartConfig // chart rendering config
	IndexLink bool        // link run pages back to index.html
	MaxNews   int         // headlines listed per run (default: 10)
}

// DefaultReportConfig returns sensible defaults.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Title:    "StockPilot Daily Analysis",
		ChartCfg: DefaultChartConfig(),
		MaxNews:  10,
	}
}

// FromConfig adapts the report section of the application config.
func FromConfig(c config.ReportConfig) ReportConfig {
	rc := DefaultReportConfig()
	if c.Title != "" {
		rc.Title = c.Title
	}
	rc.IndexLink = true
	return rc
}

var (
	runTmpl   = template.Must(template.New("run").Parse(runTemplate))
	indexTmpl = template.Must(template.New("index").Parse(indexTemplate))

	markdown = goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
)

// ════════════════════════════════════════════════════════════════════
// Template data
// ════════════════════════════════════════════════════════════════════

type kv struct {
	Label string
	Value string
	Class string
}

type recData struct {
	Action      string
	Class       string
	Confidence  string
	TimeHorizon string
	Fallback    bool
	Inputs      string
	Rationale   template.HTML
	Gauge       template.HTML
}

type forecastRow struct {
	Step                string
	Value, Lower, Upper string
}

type forecastData struct {
	Horizon        int
	Next, Final    string
	Return         string
	ReturnClass    string
	Confidence     string
	NewsVolatility string
	Chart          template.HTML
	ReturnChart    template.HTML
	PathChart      template.HTML
	Rows           []forecastRow
	Models         string
	Failures       []models.ModelFailure
}

type analystData struct {
	Title  string
	Err    string
	Fields []kv
	Body   template.HTML
	Meta   string
}

type newsRow struct {
	Published string
	Source    string
	Headline  string
	URL       string
}

type pageData struct {
	Styles      template.HTML
	Title       string
	RunID       string
	Symbol      string
	CompanyName string
	Exchange    string
	Sector      string
	Industry    string
	GeneratedAt string
	IndexLink   bool
	Quote       []kv
	Failed      bool
	FailedStage models.Stage
	Error       string
	Rec         *recData
	Forecast    *forecastData
	Statistics  []kv
	Analysts    []analystData
	News        []newsRow
	Disclaimer  string
}

type indexRow struct {
	Symbol     string
	Company    string
	Link       string
	Stage      models.Stage
	Action     models.Action
	Class      string
	Confidence string
	Return     string
	Error      string
}

type indexData struct {
	Styles      template.HTML
	Title       string
	GeneratedAt string
	Complete    int
	Failed      int
	Rows        []indexRow
	Disclaimer  string
}

// ════════════════════════════════════════════════════════════════════
// Generate
// ════════════════════════════════════════════════════════════════════

// GenerateHTML renders one run as a standalone HTML page.
func GenerateHTML(run *models.AnalysisRun, cfg ReportConfig) (string, error) {
	if run == nil {
		return "", ErrNilRun
	}
	var buf bytes.Buffer
	if err := runTmpl.Execute(&buf, buildPageData(run, cfg)); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

// GenerateIndex renders a page linking every run.
func GenerateIndex(runs []*models.AnalysisRun, cfg ReportConfig) (string, error) {
	data := indexData{
		Styles:      template.HTML(styles),
		Title:       cfg.Title,
		GeneratedAt: timestamp(time.Now()),
		Disclaimer:  prompts.Disclaimer,
	}
	for _, r := range runs {
		if r == nil {
			continue
		}
		row := indexRow{
			Symbol:  r.Symbol,
			Company: r.CompanyName,
			Link:    FileName(r.Symbol),
			Stage:   r.Stage,
			Error:   r.Error,
		}
		if rec := r.Recommendation; rec != nil {
			row.Action = rec.Action
			row.Class = actionClass(rec.Action)
			row.Confidence = rec.Confidence
		}
		if r.Forecast != nil {
			row.Return = formatSignedPct(r.Forecast.FinalStep.ExpectedReturnPct)
		}
		if r.Stage == models.StageComplete {
			data.Complete++
		} else {
			data.Failed++
		}
		data.Rows = append(data.Rows, row)
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing index template: %w", err)
	}
	return buf.String(), nil
}

// FileName is the report file name for a symbol.
func FileName(symbol string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(symbol) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String() + ".html"
}

// WriteRun writes one run page into dir and returns its path.
func WriteRun(dir string, run *models.AnalysisRun, cfg ReportConfig) (string, error) {
	page, err := GenerateHTML(run, cfg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(run.Symbol))
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// WriteAll writes one page per run of the batch plus index.html. Failed
// runs get a page too. Returns the written paths, index last.
func WriteAll(dir string, batch *models.BatchResult, cfg ReportConfig) ([]string, error) {
	if batch == nil {
		return nil, errors.New("report: batch is nil")
	}
	var (
		paths []string
		runs  []*models.AnalysisRun
		errs  []error
	)
	for _, sym := range batch.Symbols() {
		run, ok := batch.Runs[sym]
		if !ok {
			continue
		}
		runs = append(runs, run)
		path, err := WriteRun(dir, run, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths = append(paths, path)
	}

	index, err := GenerateIndex(runs, cfg)
	if err != nil {
		return paths, errors.Join(append(errs, err)...)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return paths, errors.Join(append(errs, err)...)
	}
	indexPath := filepath.Join(dir, "index.html")
	if err := os.WriteFile(indexPath, []byte(index), 0o644); err != nil {
		errs = append(errs, fmt.Errorf("writing %s: %w", indexPath, err))
	} else {
		paths = append(paths, indexPath)
	}
	log.Info().Str("dir", dir).Int("files", len(paths)).Msg("reports written")
	return paths, errors.Join(errs...)
}

// ════════════════════════════════════════════════════════════════════
// Internal: build template data
// ════════════════════════════════════════════════════════════════════

func buildPageData(r *models.AnalysisRun, cfg ReportConfig) pageData {
	if cfg.ChartCfg.Width == 0 {
		cfg.ChartCfg = DefaultChartConfig()
	}
	if cfg.MaxNews <= 0 {
		cfg.MaxNews = 10
	}
	generated := r.CompletedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	d := pageData{
		Styles:      template.HTML(styles),
		Title:       fmt.Sprintf("%s (%s) analysis", r.DisplayName(), r.Symbol),
		RunID:       r.ID,
		Symbol:      r.Symbol,
		CompanyName: r.CompanyName,
		GeneratedAt: timestamp(generated),
		IndexLink:   cfg.IndexLink,
		Failed:      r.Stage == models.StageFailed,
		FailedStage: r.FailedStage,
		Error:       r.Error,
		Disclaimer:  prompts.Disclaimer,
	}

	if p := r.Profile; p != nil {
		d.Exchange, d.Sector, d.Industry = p.Exchange, p.Sector, p.Industry
	}
	d.Quote = quoteItems(r)

	if rec := r.Recommendation; rec != nil {
		inputs := make([]string, len(rec.Inputs))
		for i, role := range rec.Inputs {
			inputs[i] = prompts.RoleTitle(role)
		}
		d.Rec = &recData{
			Action:      string(rec.Action),
			Class:       actionClass(rec.Action),
			Confidence:  rec.Confidence,
			TimeHorizon: rec.TimeHorizon,
			Fallback:    rec.Fallback,
			Inputs:      strings.Join(inputs, ", "),
			Rationale:   renderMarkdown(rec.Rationale),
			Gauge:       template.HTML(GaugeChart(confidenceScore(rec.Confidence), "Confidence: "+rec.Confidence, 180)),
		}
	}

	if fc := r.Forecast; fc != nil {
		d.Forecast = buildForecast(r.Prices, fc, cfg.ChartCfg)
	}

	if st := r.Statistics; st != nil {
		d.Statistics = []kv{
			{Label: "Current price", Value: formatUSD(st.CurrentPrice)},
			{Label: "7-day MA", Value: formatUSD(st.MA7)},
			{Label: "30-day MA", Value: formatUSD(st.MA30)},
			{Label: "Daily volatility", Value: formatPct(st.Volatility)},
			{Label: "Average return", Value: formatSignedPct(st.AvgReturn)},
			{Label: "Trend", Value: st.Trend},
			{Label: "Period high", Value: formatUSD(st.PeriodHigh)},
			{Label: "Period low", Value: formatUSD(st.PeriodLow)},
		}
	}

	for _, a := range r.Analysts {
		ad := analystData{
			Title: prompts.RoleTitle(a.Role),
			Err:   a.Err,
			Meta:  analystMeta(a),
		}
		if a.Err == "" {
			ad.Body = renderMarkdown(a.Text)
			for _, key := range []string{models.FieldSentiment, models.FieldTrend, models.FieldValuation} {
				if v, ok := a.Field(key); ok {
					ad.Fields = append(ad.Fields, kv{Label: key, Value: v, Class: fieldClass(v)})
				}
			}
		}
		d.Analysts = append(d.Analysts, ad)
	}

	for i, n := range r.News {
		if i >= cfg.MaxNews {
			break
		}
		d.News = append(d.News, newsRow{
			Published: n.PublishedAt.UTC().Format("2006-01-02"),
			Source:    n.Source,
			Headline:  n.Headline,
			URL:       n.URL,
		})
	}
	return d
}

func quoteItems(r *models.AnalysisRun) []kv {
	var out []kv
	if last, ok := r.Prices.Last(); ok {
		out = append(out, kv{Label: "Last Close", Value: formatUSD(last.Close)})
		out = append(out, kv{Label: "As Of", Value: last.Timestamp.UTC().Format("2006-01-02")})
	}
	p := r.Profile
	if p == nil {
		return out
	}
	if p.MarketCap > 0 {
		out = append(out, kv{Label: "Market Cap", Value: formatLargeUSD(p.MarketCap)})
	}
	if p.TrailingPE > 0 {
		out = append(out, kv{Label: "P/E", Value: fmt.Sprintf("%.2f", p.TrailingPE)})
	}
	if p.FiftyTwoWeekHigh > 0 {
		out = append(out, kv{Label: "52W Range", Value: formatUSD(p.FiftyTwoWeekLow) + " - " + formatUSD(p.FiftyTwoWeekHigh)})
	}
	if p.DividendYield > 0 {
		out = append(out, kv{Label: "Div Yield", Value: formatPct(p.DividendYield * 100)})
	}
	return out
}

func buildForecast(prices models.PriceSeries, fc *models.EnsembleForecast, chartCfg ChartConfig) *forecastData {
	fd := &forecastData{
		Horizon:    fc.Horizon,
		Next:       formatUSD(fc.NextStep.Value),
		Final:      formatUSD(fc.FinalStep.Value),
		Return:     formatSignedPct(fc.FinalStep.ExpectedReturnPct),
		Confidence: fc.Confidence,
		Chart:      template.HTML(ForecastChart(prices, fc, chartCfg)),
		Models:     strings.Join(fc.Models, ", "),
		Failures:   fc.Failures,
	}
	switch {
	case fc.FinalStep.ExpectedReturnPct > 0:
		fd.ReturnClass = "positive"
	case fc.FinalStep.ExpectedReturnPct < 0:
		fd.ReturnClass = "negative"
	}
	if fc.NewsVolatility > 0 {
		fd.NewsVolatility = fmt.Sprintf("%.2f", fc.NewsVolatility)
	}
	for _, p := range fc.Steps {
		fd.Rows = append(fd.Rows, forecastRow{
			Step:  fmt.Sprintf("+%d", p.Step),
			Value: formatUSD(p.Value),
			Lower: formatUSD(p.Lower),
			Upper: formatUSD(p.Upper),
		})
	}

	if len(fc.Members) > 1 && fc.LastPrice != 0 {
		var items []BarItem
		for _, m := range fc.Members {
			if len(m.Points) == 0 {
				continue
			}
			final := m.Points[len(m.Points)-1].Value
			items = append(items, BarItem{Label: m.Model, Value: (final - fc.LastPrice) / fc.LastPrice * 100})
		}
		bar := chartCfg
		bar.Title = fmt.Sprintf("Expected return at step %d by model", fc.Horizon)
		bar.MarginLeft = 140
		fd.ReturnChart = template.HTML(HorizontalBarChart(items, bar))
		fd.PathChart = template.HTML(modelPathChart(fc, chartCfg))
	}
	return fd
}

// modelPathChart overlays each member's forecast path on the ensemble mean.
func modelPathChart(fc *models.EnsembleForecast, cfg ChartConfig) string {
	labels := make([]string, len(fc.Steps))
	mean := make([]float64, len(fc.Steps))
	for i, p := range fc.Steps {
		labels[i] = fmt.Sprintf("+%d", p.Step)
		mean[i] = p.Value
	}
	series := []LineChartSeries{{Name: "Ensemble", Values: mean, Color: "#2196f3"}}
	for mi, m := range fc.Members {
		vals := make([]float64, len(fc.Steps))
		for i := range vals {
			vals[i] = math.NaN()
			if i < len(m.Points) {
				vals[i] = m.Points[i].Value
			}
		}
		series = append(series, LineChartSeries{Name: m.Model, Values: vals, Color: palette[(mi+2)%len(palette)]})
	}
	cfg.Title = "Forecast path by model"
	cfg.Height = cfg.Height * 3 / 4
	return LineChart(series, labels, cfg)
}

// renderMarkdown converts generated text to HTML. Raw HTML in the input is
// not passed through.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(buf.String())
}

func analystMeta(a models.AnalystOutput) string {
	parts := []string{}
	if a.Model != "" {
		parts = append(parts, a.Model)
	}
	if a.Tokens > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", a.Tokens))
	}
	if a.Duration > 0 {
		parts = append(parts, FormatDuration(a.Duration))
	}
	return strings.Join(parts, " · ")
}

func actionClass(a models.Action) string {
	switch a {
	case models.ActionBuy:
		return "buy"
	case models.ActionSell:
		return "sell"
	case models.ActionHold:
		return "hold"
	}
	return "neutral"
}

func fieldClass(v string) string {
	switch strings.ToLower(v) {
	case "bullish", "upward", "undervalued":
		return "buy"
	case "bearish", "downward", "overvalued":
		return "sell"
	}
	return "neutral"
}
