package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const feedPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Live verdicts · TokenSafe</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --text-secondary: #a1a1aa; --text-tertiary: #52525b;
            --safe: #22c55e; --low: #84cc16; --medium: #eab308; --high: #f97316; --critical: #ef4444;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
            background: var(--bg); color: var(--text);
            min-height: 100vh; font-size: 14px;
            -webkit-font-smoothing: antialiased;
        }
        .mono { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; }
        .container { max-width: 800px; margin: 0 auto; padding: 0 24px; }
        header { border-bottom: 1px solid var(--border); padding: 16px 0; }
        .header-inner { display: flex; justify-content: space-between; align-items: center; }
        .logo { font-weight: 600; font-size: 15px; color: var(--text); text-decoration: none; }
        nav { display: flex; gap: 32px; }
        nav a { color: var(--text-secondary); text-decoration: none; font-size: 13px; }
        nav a:hover { color: var(--text); }

        .feed-header {
            padding: 48px 0 24px;
            display: flex; justify-content: space-between; align-items: flex-end;
            border-bottom: 1px solid var(--border);
        }
        .feed-title { font-size: 24px; font-weight: 600; margin-bottom: 4px; }
        .feed-desc { color: var(--text-secondary); }
        .live-badge {
            display: flex; align-items: center; gap: 8px;
            background: var(--bg-subtle); border: 1px solid var(--border);
            padding: 8px 14px; border-radius: 20px; font-size: 13px; color: var(--text-secondary);
        }
        .live-dot { width: 8px; height: 8px; background: var(--text-tertiary); border-radius: 50%; }
        .live-dot.on { background: var(--safe); animation: pulse 2s ease-in-out infinite; }
        @keyframes pulse { 0%, 100% { opacity: 1; } 50% { opacity: 0.4; } }

        .verdict {
            display: grid; grid-template-columns: 1fr auto;
            gap: 16px; padding: 20px 0; border-bottom: 1px solid var(--border);
        }
        .verdict.new { animation: slideIn 0.3s ease-out; }
        @keyframes slideIn { from { opacity: 0; transform: translateY(-8px); } to { opacity: 1; transform: translateY(0); } }
        .token { font-size: 14px; margin-bottom: 8px; word-break: break-all; }
        .tags { display: flex; gap: 8px; flex-wrap: wrap; }
        .tag {
            background: var(--bg-subtle); border: 1px solid var(--border);
            padding: 2px 8px; border-radius: 4px; font-size: 11px;
            text-transform: uppercase; color: var(--text-secondary);
        }
        .tag.honeypot { color: var(--critical); border-color: var(--critical); }
        .right { text-align: right; }
        .score { font-size: 22px; font-weight: 600; }
        .level { font-size: 12px; margin-top: 4px; }
        .SAFE { color: var(--safe); } .LOW_RISK { color: var(--low); } .MEDIUM_RISK { color: var(--medium); }
        .HIGH_RISK { color: var(--high); } .CRITICAL { color: var(--critical); }
        .empty { text-align: center; padding: 80px 24px; color: var(--text-tertiary); }
    </style>
</head>
<body>
    <header><div class="container header-inner">
        <a href="/" class="logo">TokenSafe</a>
        <nav>
            <a href="/">Manifest</a>
            <a href="/v1/chains">Chains</a>
            <a href="/health">Health</a>
        </nav>
    </div></header>
    <main class="container">
        <div class="feed-header">
            <div>
                <h1 class="feed-title">Live verdicts</h1>
                <p class="feed-desc">Every token analysis as it completes</p>
            </div>
            <div class="live-badge"><span class="live-dot" id="dot"></span> <span id="state">Connecting</span></div>
        </div>
        <div id="feed"><div class="empty">Waiting for analyses...</div></div>
    </main>
    <script>
        const MAX = 50;
        const feed = document.getElementById('feed');
        const esc = s => String(s).replace(/[&<>"']/g, c => ({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[c]));

        function row(v) {
            const tags = ['chain ' + v.chain_id, 'confidence ' + Math.round(v.confidence * 100) + '%'];
            if (v.red_flags) tags.push(v.red_flags + ' red flags');
            (v.degraded_sources || []).forEach(s => tags.push(s + ' unavailable'));
            return '<div class="verdict new">' +
                '<div><div class="token mono">' + esc(v.token_address) + '</div>' +
                '<div class="tags">' +
                    (v.is_honeypot ? '<span class="tag honeypot">honeypot</span>' : '') +
                    tags.map(t => '<span class="tag">' + esc(t) + '</span>').join('') +
                '</div></div>' +
                '<div class="right"><div class="score mono ' + esc(v.risk_level) + '">' + v.safety_score + '</div>' +
                '<div class="level ' + esc(v.risk_level) + '">' + esc(v.risk_level.replace('_', ' ')) + '</div></div>' +
            '</div>';
        }

        function connect() {
            const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
            ws.onopen = () => {
                document.getElementById('dot').classList.add('on');
                document.getElementById('state').textContent = 'Live';
                ws.send(JSON.stringify({eventTypes: ['verdict']}));
            };
            ws.onmessage = msg => {
                const ev = JSON.parse(msg.data);
                if (ev.type !== 'verdict') return;
                if (feed.querySelector('.empty')) feed.innerHTML = '';
                feed.insertAdjacentHTML('afterbegin', row(ev.data));
                while (feed.children.length > MAX) feed.lastChild.remove();
            };
            ws.onclose = () => {
                document.getElementById('dot').classList.remove('on');
                document.getElementById('state').textContent = 'Reconnecting';
                setTimeout(connect, 3000);
            };
        }
        connect();
    </script>
</body>
</html>`

func feedPageHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, feedPageHTML)
}
