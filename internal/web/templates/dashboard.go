// Package templates holds the HTML components of the web UI.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/listsync/internal/core"
)

// BindingRow is one binding on the status page.
type BindingRow struct {
	Index  int
	Name   string
	ListID string
	File   string
}

// DashboardParams feeds the status page.
type DashboardParams struct {
	Bindings         []BindingRow
	Runs             []core.RunInfo
	LatestRunID      string
	SkipUnsubscribed bool
	InvalidCount     int
	// APIKey is the key the page was opened with, forwarded on links.
	APIKey string
}

// DownloadURL is the invalid-records download link, carrying the API key
// when the page was opened with one.
func (p DashboardParams) DownloadURL() string {
	const path = "/api/invalids/download"
	if p.APIKey == "" {
		return path
	}
	return path + "?api_key=" + url.QueryEscape(p.APIKey)
}

// htmlWriter collects the first write error so components can emit
// markup without checking every call.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(parts ...string) {
	for _, p := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, p)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

// Dashboard renders the status page: the bindings with sync controls and a
// live log pane fed by the run stream.
func Dashboard(p DashboardParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>List Sync</title><style>`, dashboardCSS, `</style></head><body>`,
			`<h1>List Sync</h1>`)

		h.raw(`<form id="sync-form"><table><thead><tr><th></th><th>Name</th><th>List ID</th><th>File</th></tr></thead><tbody>`)
		for _, b := range p.Bindings {
			idx := strconv.Itoa(b.Index)
			h.raw(`<tr><td><input type="radio" name="binding" value="`, idx, `"`)
			if b.Index == 0 {
				h.raw(` checked`)
			}
			h.raw(`></td><td>`)
			h.text(b.Name)
			h.raw(`</td><td><code>`)
			h.text(b.ListID)
			h.raw(`</code></td><td>`)
			h.text(b.File)
			h.raw(`</td></tr>`)
		}
		h.raw(`</tbody></table>`)

		h.raw(`<label><input type="checkbox" id="unsub"> Unsubscribe addresses missing from the spreadsheet</label><br>`,
			`<label><input type="checkbox" id="skip_unsub"`)
		if p.SkipUnsubscribed {
			h.raw(` checked`)
		}
		h.raw(`> Skip addresses already unsubscribed</label><br>`,
			`<button type="button" id="sync-one">Sync selected</button> `,
			`<button type="button" id="sync-all">Sync all</button> `,
			`<button type="button" id="cancel" disabled>Cancel</button></form>`)

		h.raw(`<p><a id="download" href="`)
		h.text(p.DownloadURL())
		h.raw(`">Download invalid emails</a> (`,
			strconv.Itoa(p.InvalidCount), ` held)</p>`)

		h.raw(`<h2>Log</h2><pre id="log"></pre>`)

		if len(p.Runs) > 0 {
			h.raw(`<h2>Recent runs</h2><ul>`)
			for _, run := range p.Runs {
				state := "running"
				if run.Done {
					state = "done"
				}
				h.raw(`<li><a href="#" data-run="`)
				h.text(run.ID)
				h.raw(`">`)
				h.text(fmt.Sprintf("%s %v (%s)", run.StartedAt.Format("2006-01-02 15:04:05"), run.Bindings, state))
				h.raw(`</a></li>`)
			}
			h.raw(`</ul>`)
		}

		h.raw(`<script>const latestRun = "`)
		h.text(p.LatestRunID)
		h.raw(`";`, dashboardJS, `</script></body></html>`)
		return h.err
	})
}

// ErrorAlert renders an error message with its suggested action.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<div class="error" role="alert"><strong>`)
		h.text(message)
		h.raw(`</strong>`)
		if action != "" {
			h.raw(` `)
			h.text(action)
		}
		h.raw(` <small>(`)
		h.text(code)
		h.raw(`)</small></div>`)
		return h.err
	})
}

const dashboardCSS = `
body{font-family:system-ui,sans-serif;margin:2rem;max-width:60rem}
table{border-collapse:collapse;margin-bottom:1rem}
td,th{padding:.25rem .75rem;border-bottom:1px solid #ddd;text-align:left}
pre#log{background:#111;color:#ddd;padding:1rem;height:24rem;overflow:auto;white-space:pre-wrap}
.error{background:#fee;border:1px solid #c00;padding:.5rem;margin:.5rem 0}
`

const dashboardJS = `
const logEl = document.getElementById("log");
const cancelBtn = document.getElementById("cancel");
let source = null;
let current = "";
const apiKey = new URLSearchParams(location.search).get("api_key");

function withKey(url) {
  if (!apiKey) return url;
  return url + (url.includes("?") ? "&" : "?") + "api_key=" + encodeURIComponent(apiKey);
}

function follow(runID) {
  if (source) source.close();
  logEl.textContent = "";
  current = runID;
  cancelBtn.disabled = false;
  source = new EventSource(withKey("/api/runs/" + encodeURIComponent(runID) + "/stream"));
  source.addEventListener("log", e => {
    logEl.textContent += e.data + "\n";
    logEl.scrollTop = logEl.scrollHeight;
  });
  source.addEventListener("complete", () => {
    source.close();
    cancelBtn.disabled = true;
  });
}

async function trigger(path) {
  const q = new URLSearchParams({
    unsub: document.getElementById("unsub").checked ? "1" : "0",
    skip_unsub: document.getElementById("skip_unsub").checked ? "1" : "0",
  });
  const res = await fetch(withKey(path + "?" + q), {method: "POST", headers: {Accept: "application/json"}});
  const body = await res.json();
  if (!res.ok) {
    logEl.textContent = body.message + " " + (body.action || "") + " (" + body.code + ")";
    return;
  }
  follow(body.run_id);
}

document.getElementById("sync-one").onclick = () => {
  const sel = document.querySelector("input[name=binding]:checked");
  if (sel) trigger("/api/sync/" + sel.value);
};
document.getElementById("sync-all").onclick = () => trigger("/api/sync");
cancelBtn.onclick = () => {
  if (current) fetch(withKey("/api/runs/" + encodeURIComponent(current) + "/cancel"), {method: "POST"});
};
document.querySelectorAll("a[data-run]").forEach(a => a.onclick = e => {
  e.preventDefault();
  follow(a.dataset.run);
});
if (latestRun) follow(latestRun);
`
