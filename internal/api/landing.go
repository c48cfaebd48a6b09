package api

import (
	"html/template"
	"net/http"
)

var landingTmpl = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Game of Thrones Explorer</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #111418; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #1c2128; border-radius: 12px; padding: 2.5rem; box-shadow: 0 25px 50px rgba(0,0,0,0.4); }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section { margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin-bottom: 0.5rem; }
  pre { background: #111418; border: 1px solid #30363d; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; line-height: 1.5; }
  code { font-family: "SF Mono", "Fira Code", Menlo, monospace; }
  .dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-right: 0.5rem; background: #eab308; }
  .dot.ready { background: #22c55e; }
  .dot.degraded { background: #ef4444; }
  .endpoint { font-family: "SF Mono", monospace; font-size: 0.9rem; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>Game of Thrones Explorer</h1>
  <p class="subtitle">Ask questions answered from passages of the A Song of Ice and Fire books.</p>

  <div class="section">
    <div class="section-title">Status</div>
    <p><span class="dot {{.State}}"></span>{{.State}} &middot; {{.Chunks}} passages indexed{{if .Embedder}} with {{.Embedder}}{{end}}</p>
  </div>

  <div class="section">
    <div class="section-title">Try it</div>
    <pre><code>curl -X POST -H 'Content-Type: application/json' \
  -d '{"text": "Who is Jon Snow?"}' /ask</code></pre>
  </div>

  <div class="section">
    <div class="section-title">Endpoints</div>
    <p><span class="endpoint">POST /ask</span> &middot; ask a question</p>
    <p><span class="endpoint">POST /reset</span> &middot; clear a session's history</p>
    <p><span class="endpoint">/mcp</span> &middot; MCP Streamable HTTP</p>
    <p><a href="/health" class="endpoint">/health</a> &middot; liveness</p>
  </div>
</div>
</body>
</html>`))

func renderLanding(w http.ResponseWriter, st Status) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	landingTmpl.Execute(w, st)
}
