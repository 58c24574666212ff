package server

// DashboardHTML is the single-page live view of recorded exchanges. It loads
// the latest history page, then follows /__ws for new entries.
const DashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Tapedeck</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, monospace;
    background: #0d1117; color: #c9d1d9; padding: 20px;
  }
  h1 { color: #58a6ff; margin-bottom: 4px; font-size: 1.5em; }
  .subtitle { color: #8b949e; margin-bottom: 20px; font-size: 0.9em; }
  .status-bar {
    display: flex; gap: 20px; margin-bottom: 20px; padding: 12px 16px;
    background: #161b22; border: 1px solid #30363d; border-radius: 6px;
  }
  .status-item { display: flex; flex-direction: column; }
  .status-label { font-size: 0.75em; color: #8b949e; text-transform: uppercase; }
  .status-value { font-size: 1.1em; font-weight: 600; }
  .status-value.connected { color: #3fb950; }
  .status-value.disconnected { color: #f85149; }
  .log { background: #161b22; border: 1px solid #30363d; border-radius: 6px; }
  .log-header {
    padding: 12px 16px; border-bottom: 1px solid #30363d;
    font-weight: 600; color: #58a6ff;
  }
  .row {
    display: grid; grid-template-columns: 110px 70px 1fr 70px 90px;
    padding: 8px 16px; border-bottom: 1px solid #21262d;
    font-size: 0.85em; align-items: center;
  }
  .row:hover { background: #1c2128; }
  .time { color: #8b949e; }
  .method { color: #d2a8ff; font-weight: 600; }
  .status.ok { color: #3fb950; }
  .status.warn { color: #d29922; }
  .status.err { color: #f85149; }
  .replayed { color: #8b949e; font-size: 0.8em; margin-left: 6px; }
  button {
    background: #21262d; color: #c9d1d9; border: 1px solid #30363d;
    padding: 2px 10px; border-radius: 4px; cursor: pointer; font-size: 0.8em;
  }
  button:hover { background: #30363d; }
  .empty { text-align: center; padding: 60px 20px; color: #8b949e; }
</style>
</head>
<body>
<h1>Tapedeck</h1>
<p class="subtitle">Recorded exchanges, newest first</p>

<div class="status-bar">
  <div class="status-item">
    <span class="status-label">Live feed</span>
    <span class="status-value disconnected" id="conn">Disconnected</span>
  </div>
  <div class="status-item">
    <span class="status-label">Entries</span>
    <span class="status-value" id="count">0</span>
  </div>
</div>

<div class="log">
  <div class="log-header">History</div>
  <div id="rows"><div class="empty">No exchanges recorded yet.</div></div>
</div>

<script>
const rows = document.getElementById('rows');
const MAX_ROWS = 200;
let count = 0;

function esc(s) {
  const d = document.createElement('div');
  d.textContent = s;
  return d.innerHTML;
}

function statusClass(code) {
  return code < 400 ? 'ok' : code < 500 ? 'warn' : 'err';
}

function add(e) {
  const empty = rows.querySelector('.empty');
  if (empty) empty.remove();
  count++;
  document.getElementById('count').textContent = count;

  const row = document.createElement('div');
  row.className = 'row';
  const target = e.path + (e.query ? '?' + e.query : '');
  const time = new Date(e.timestamp).toLocaleTimeString('en-US', {hour12: false});
  row.innerHTML =
    '<span class="time">' + time + '</span>' +
    '<span class="method">' + esc(e.method) + '</span>' +
    '<span>' + esc(target) + (e.replay_of ? '<span class="replayed">replay</span>' : '') + '</span>' +
    '<span class="status ' + statusClass(e.status_code) + '">' + e.status_code + '</span>' +
    '<span><button data-id="' + esc(e.id) + '">Replay</button></span>';
  row.querySelector('button').onclick = (ev) => replay(ev.target.dataset.id);
  rows.insertBefore(row, rows.firstChild);
  while (rows.children.length > MAX_ROWS) rows.removeChild(rows.lastChild);
}

async function replay(id) {
  const resp = await fetch('/__replay', {method: 'POST', body: JSON.stringify({id: id})});
  if (resp.headers.get('X-Tapedeck-Error') === 'proxy') {
    const body = await resp.json();
    alert('Replay failed: ' + body.error);
  }
}

async function load() {
  let url = '/__history?limit=100';
  for (;;) {
    const page = await (await fetch(url)).json();
    page.history.forEach(add);
    if (!page.next) break;
    url = '/__history?limit=100&after=' + encodeURIComponent(page.next);
  }
}

function connect() {
  const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
  const ws = new WebSocket(proto + '//' + location.host + '/__ws');
  const conn = document.getElementById('conn');
  ws.onopen = () => { conn.textContent = 'Connected'; conn.className = 'status-value connected'; };
  ws.onclose = () => {
    conn.textContent = 'Disconnected';
    conn.className = 'status-value disconnected';
    setTimeout(connect, 2000);
  };
  ws.onmessage = (m) => add(JSON.parse(m.data).entry);
}

load().then(connect);
</script>
</body>
</html>`
