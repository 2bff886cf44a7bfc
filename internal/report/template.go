package report

// styles is shared by the run page and the index page.
const styles = `<style>
  :root {
    --bg: #ffffff;
    --text: #1a1a2e;
    --muted: #6b7280;
    --border: #e5e7eb;
    --accent: #2563eb;
    --green: #16a34a;
    --red: #dc2626;
    --orange: #ea580c;
    --section-bg: #f8fafc;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    color: var(--text);
    background: var(--bg);
    line-height: 1.6;
    max-width: 900px;
    margin: 0 auto;
    padding: 20px;
  }
  h1, h2, h3, h4 { font-weight: 600; }
  h1 { font-size: 1.5rem; margin-bottom: 4px; }
  h2 { font-size: 1.2rem; margin: 24px 0 12px; padding-bottom: 6px; border-bottom: 2px solid var(--accent); }
  h3 { font-size: 1rem; margin: 16px 0 8px; }
  p { margin: 6px 0; }
  a { color: var(--accent); }
  .muted { color: var(--muted); font-size: 0.85rem; }

  .header {
    display: flex;
    justify-content: space-between;
    align-items: flex-start;
    border-bottom: 3px solid var(--accent);
    padding-bottom: 12px;
    margin-bottom: 16px;
  }
  .header-left h1 { color: var(--accent); }
  .header-right { text-align: right; }
  .ticker-badge {
    display: inline-block;
    background: var(--accent);
    color: white;
    padding: 2px 12px;
    border-radius: 4px;
    font-weight: 700;
    font-size: 1.1rem;
    margin-right: 8px;
  }

  .quote-bar {
    display: grid;
    grid-template-columns: repeat(auto-fill, minmax(140px, 1fr));
    gap: 8px;
    background: var(--section-bg);
    padding: 12px;
    border-radius: 8px;
    margin-bottom: 16px;
  }
  .quote-item { text-align: center; }
  .quote-item .label { font-size: 0.75rem; color: var(--muted); text-transform: uppercase; }
  .quote-item .value { font-size: 1rem; font-weight: 600; }
  .positive { color: var(--green); }
  .negative { color: var(--red); }

  .rec-box {
    display: flex;
    align-items: center;
    justify-content: space-between;
    gap: 16px;
    padding: 16px;
    border-radius: 8px;
    margin: 12px 0;
  }
  .rec-box.buy { background: #ecfdf5; border-left: 5px solid #22c55e; }
  .rec-box.hold { background: #fefce8; border-left: 5px solid #eab308; }
  .rec-box.sell { background: #fef2f2; border-left: 5px solid var(--red); }
  .rec-label { font-size: 1.4rem; font-weight: 700; }
  .rec-box.buy .rec-label { color: #22c55e; }
  .rec-box.hold .rec-label { color: #eab308; }
  .rec-box.sell .rec-label { color: var(--red); }

  .failed-box {
    background: #fef2f2;
    border-left: 5px solid var(--red);
    padding: 16px;
    border-radius: 8px;
    margin: 12px 0;
  }

  table { width: 100%; border-collapse: collapse; margin: 8px 0 16px; font-size: 0.9rem; }
  th { background: var(--section-bg); text-align: left; padding: 8px; font-weight: 600; }
  td { padding: 8px; border-bottom: 1px solid var(--border); }
  .signal-badge {
    display: inline-block;
    padding: 1px 8px;
    border-radius: 3px;
    font-size: 0.8rem;
    font-weight: 600;
  }
  .signal-badge.buy { background: #dcfce7; color: var(--green); }
  .signal-badge.sell { background: #fef2f2; color: var(--red); }
  .signal-badge.hold { background: #fefce8; color: #a16207; }
  .signal-badge.neutral { background: #f3f4f6; color: var(--muted); }

  .ratio-grid {
    display: grid;
    grid-template-columns: repeat(auto-fill, minmax(180px, 1fr));
    gap: 8px;
    margin: 10px 0 16px;
  }
  .ratio-card {
    background: var(--section-bg);
    padding: 8px 12px;
    border-radius: 6px;
    display: flex;
    justify-content: space-between;
  }
  .ratio-card .label { color: var(--muted); font-size: 0.85rem; }
  .ratio-card .value { font-weight: 600; }

  .chart-container { margin: 12px 0; overflow-x: auto; }
  .chart-container svg { max-width: 100%; height: auto; }

  .section { margin: 20px 0; }
  .section-summary {
    background: var(--section-bg);
    padding: 12px;
    border-radius: 6px;
    margin: 8px 0;
    font-size: 0.95rem;
    line-height: 1.7;
  }
  .section-summary ul, .section-summary ol { margin-left: 20px; }

  .footer {
    margin-top: 30px;
    padding-top: 12px;
    border-top: 2px solid var(--border);
    font-size: 0.8rem;
    color: var(--muted);
    text-align: center;
  }

  @media print {
    body { max-width: 100%; padding: 10px; }
    .section { page-break-inside: avoid; }
  }
</style>`

// runTemplate renders one AnalysisRun.
const runTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
{{.Styles}}
</head>
<body>

<!-- ═══════ HEADER ═══════ -->
<div class="header">
  <div class="header-left">
    <h1><span class="ticker-badge">{{.Symbol}}</span> {{.CompanyName}}</h1>
    {{if .Sector}}<p class="muted">{{with .Exchange}}{{.}} · {{end}}{{.Sector}}{{with .Industry}} · {{.}}{{end}}</p>{{end}}
  </div>
  <div class="header-right">
    <p class="muted">{{.GeneratedAt}}</p>
    {{if .IndexLink}}<p class="muted"><a href="index.html">All symbols</a></p>{{end}}
  </div>
</div>

<!-- ═══════ QUOTE BAR ═══════ -->
{{if .Quote}}
<div class="quote-bar">
  {{range .Quote}}
  <div class="quote-item">
    <div class="label">{{.Label}}</div>
    <div class="value">{{.Value}}</div>
  </div>
  {{end}}
</div>
{{end}}

<!-- ═══════ FAILURE ═══════ -->
{{if .Failed}}
<div class="failed-box">
  <h3>Analysis failed during {{.FailedStage}}</h3>
  <p>{{.Error}}</p>
</div>
{{end}}

<!-- ═══════ RECOMMENDATION ═══════ -->
{{with .Rec}}
<div class="section">
  <h2>Recommendation</h2>
  <div class="rec-box {{.Class}}">
    <div>
      <div class="rec-label">{{.Action}}</div>
      <div class="muted">Confidence: {{.Confidence}}{{with .TimeHorizon}} · Horizon: {{.}}{{end}}{{if .Fallback}} · default applied{{end}}</div>
      <div class="muted">Based on: {{.Inputs}}</div>
    </div>
    <div>{{.Gauge}}</div>
  </div>
  <div class="section-summary">{{.Rationale}}</div>
</div>
{{end}}

<!-- ═══════ FORECAST ═══════ -->
{{with .Forecast}}
<div class="section">
  <h2>Forecast</h2>
  <div class="ratio-grid">
    <div class="ratio-card"><span class="label">Next step</span><span class="value">{{.Next}}</span></div>
    <div class="ratio-card"><span class="label">Step {{.Horizon}}</span><span class="value">{{.Final}}</span></div>
    <div class="ratio-card"><span class="label">Expected return</span><span class="value {{.ReturnClass}}">{{.Return}}</span></div>
    <div class="ratio-card"><span class="label">Confidence</span><span class="value">{{.Confidence}}</span></div>
    {{with .NewsVolatility}}<div class="ratio-card"><span class="label">News volatility</span><span class="value">{{.}}</span></div>{{end}}
  </div>
  <div class="chart-container">{{.Chart}}</div>
  {{if .ReturnChart}}<div class="chart-container">{{.ReturnChart}}</div>{{end}}
  {{if .PathChart}}<div class="chart-container">{{.PathChart}}</div>{{end}}
  <table>
    <thead><tr><th>Step</th><th>Mean</th><th>Lower</th><th>Upper</th></tr></thead>
    <tbody>
    {{range .Rows}}
    <tr><td>{{.Step}}</td><td>{{.Value}}</td><td>{{.Lower}}</td><td>{{.Upper}}</td></tr>
    {{end}}
    </tbody>
  </table>
  <p class="muted">Models: {{.Models}}</p>
  {{range .Failures}}<p class="muted">Excluded {{.Model}}: {{.Reason}}</p>{{end}}
</div>
{{end}}

<!-- ═══════ STATISTICS ═══════ -->
{{if .Statistics}}
<div class="section">
  <h2>Price Statistics</h2>
  <div class="ratio-grid">
    {{range .Statistics}}
    <div class="ratio-card"><span class="label">{{.Label}}</span><span class="value">{{.Value}}</span></div>
    {{end}}
  </div>
</div>
{{end}}

<!-- ═══════ ANALYSTS ═══════ -->
{{range .Analysts}}
<div class="section">
  <h2>{{.Title}}</h2>
  {{if .Err}}
  <p class="negative">Unavailable: {{.Err}}</p>
  {{else}}
  {{range .Fields}}<span class="signal-badge {{.Class}}">{{.Label}}: {{.Value}}</span> {{end}}
  <div class="section-summary">{{.Body}}</div>
  {{end}}
  <p class="muted">{{.Meta}}</p>
</div>
{{end}}

<!-- ═══════ NEWS ═══════ -->
{{if .News}}
<div class="section">
  <h2>Headlines</h2>
  <table>
    <thead><tr><th>Published</th><th>Source</th><th>Headline</th></tr></thead>
    <tbody>
    {{range .News}}
    <tr><td>{{.Published}}</td><td>{{.Source}}</td><td>{{if .URL}}<a href="{{.URL}}">{{.Headline}}</a>{{else}}{{.Headline}}{{end}}</td></tr>
    {{end}}
    </tbody>
  </table>
</div>
{{end}}

<!-- ═══════ FOOTER ═══════ -->
<div class="footer">
  <p><strong>Disclaimer:</strong> {{.Disclaimer}}</p>
  <p>Run {{.RunID}} · Generated on {{.GeneratedAt}}</p>
</div>

</body>
</html>`

// indexTemplate lists every symbol of a batch.
const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
{{.Styles}}
</head>
<body>

<div class="header">
  <div class="header-left">
    <h1>{{.Title}}</h1>
    <p class="muted">{{.Complete}} complete · {{.Failed}} failed</p>
  </div>
  <div class="header-right">
    <p class="muted">{{.GeneratedAt}}</p>
  </div>
</div>

<table>
  <thead><tr><th>Symbol</th><th>Company</th><th>Action</th><th>Confidence</th><th>Expected return</th><th>Status</th></tr></thead>
  <tbody>
  {{range .Rows}}
  <tr>
    <td><a href="{{.Link}}">{{.Symbol}}</a></td>
    <td>{{.Company}}</td>
    <td>{{if .Action}}<span class="signal-badge {{.Class}}">{{.Action}}</span>{{end}}</td>
    <td>{{.Confidence}}</td>
    <td>{{.Return}}</td>
    <td>{{if .Error}}<span class="negative">{{.Stage}}: {{.Error}}</span>{{else}}{{.Stage}}{{end}}</td>
  </tr>
  {{end}}
  </tbody>
</table>

<div class="footer">
  <p><strong>Disclaimer:</strong> {{.Disclaimer}}</p>
</div>

</body>
</html>`
