package ui

import (
	"html/template"

	"touchmap/internal/keymap"
)

type pageData struct {
	Remote   string
	Gestures []keymap.Gesture
}

var tmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>touchmap editor</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: #e2e8f0;
            min-height: 100vh;
            padding: 1.5rem;
        }
        h1 {
            font-size: 1.5rem;
            margin-bottom: 1rem;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            -webkit-background-clip: text;
            -webkit-text-fill-color: transparent;
        }
        .layout { display: grid; grid-template-columns: 1fr 340px; gap: 1rem; }
        .card {
            background: rgba(255,255,255,0.05);
            border: 1px solid rgba(255,255,255,0.1);
            border-radius: 12px;
            padding: 1rem;
            margin-bottom: 1rem;
        }
        .card h2 { font-size: 1rem; color: #a5b4fc; margin-bottom: 0.75rem; }
        #stage { position: relative; width: 100%; }
        #shot { width: 100%; display: block; border-radius: 8px; }
        #overlay { position: absolute; left: 0; top: 0; pointer-events: none; }
        .row { display: flex; gap: 0.5rem; align-items: center; margin-bottom: 0.5rem; flex-wrap: wrap; }
        .row label { font-size: 0.8rem; color: #94a3b8; min-width: 90px; }
        select, input[type="text"], input[type="number"] {
            background: rgba(255,255,255,0.1);
            border: 1px solid rgba(255,255,255,0.2);
            border-radius: 6px;
            padding: 0.35rem;
            color: #e2e8f0;
            font-size: 0.8rem;
        }
        input[type="number"] { width: 80px; }
        .btn {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            border: none;
            border-radius: 6px;
            padding: 0.4rem 0.8rem;
            color: white;
            font-weight: 600;
            cursor: pointer;
            font-size: 0.8rem;
        }
        .btn-secondary { background: rgba(255,255,255,0.1); border: 1px solid rgba(255,255,255,0.2); }
        .btn-danger { background: rgba(239,68,68,0.8); }
        table { width: 100%; border-collapse: collapse; font-size: 0.8rem; }
        td { padding: 0.25rem; border-bottom: 1px solid rgba(255,255,255,0.05); }
        tr.selected td { background: rgba(102,126,234,0.2); }
        .chip {
            display: inline-block;
            background: rgba(102,126,234,0.2);
            padding: 0.15rem 0.5rem;
            border-radius: 6px;
            margin: 0.1rem;
            font-size: 0.75rem;
        }
        #status-bar {
            position: fixed;
            bottom: 1.5rem;
            right: 1.5rem;
            padding: 0.75rem 1.25rem;
            background: rgba(0,0,0,0.9);
            border-radius: 10px;
            display: none;
        }
        #capture { font-size: 0.8rem; color: #94a3b8; }
    </style>
</head>
<body>
    <h1>touchmap editor</h1>
    <div class="layout">
        <div>
            <div class="card">
                <div id="stage">
                    <img id="shot" alt="screenshot">
                    <canvas id="overlay"></canvas>
                </div>
                <p id="capture"></p>
            </div>
        </div>
        <div>
            <div class="card">
                <h2>Device</h2>
                <div class="row"><span class="chip">{{.Remote}}</span></div>
                <div class="row">
                    <button class="btn" onclick="post('/api/export')">Export</button>
                    <button class="btn btn-secondary" onclick="post('/api/screenshot')">Screenshot</button>
                    <button class="btn btn-secondary" onclick="post('/api/screenshot?delay=true')">Screenshot (delayed)</button>
                </div>
                <div class="row"><input type="file" id="upload" accept="image/*"></div>
                <div class="row">
                    <button class="btn btn-secondary" onclick="discover()">Find devices</button>
                    <span id="devices"></span>
                </div>
            </div>
            <div class="card">
                <h2>Capture</h2>
                <div class="row">
                    <button class="btn btn-secondary" onclick="arm('mouse_center')">Mouse center</button>
                    <button class="btn btn-secondary" onclick="arm('wheel_center')">Wheel center</button>
                    <button class="btn btn-secondary" onclick="arm('switch_key')">Add switch key</button>
                    <button class="btn btn-danger" onclick="post('/api/cancel')">Cancel</button>
                </div>
                <div class="row" id="switch-keys"></div>
            </div>
            <div class="card">
                <h2>Wheel</h2>
                <div class="row"><label>Range</label><input type="number" id="range" step="0.01" min="0" max="0.5"></div>
                <div class="row"><label>Shift range</label><input type="number" id="shift" step="0.01" min="0" max="0.5"></div>
                <div class="row">
                    <label><input type="checkbox" id="shift-enable"> Shift ring</label>
                    <label><input type="checkbox" id="shift-switch"> Latching</label>
                </div>
                <div class="row"><label>WASD</label><input type="text" id="wasd" placeholder="KEY_W,KEY_A,KEY_S,KEY_D"></div>
                <div class="row"><label>Mouse speed</label><input type="number" id="speed-x" step="0.1"><input type="number" id="speed-y" step="0.1"></div>
                <div class="row"><button class="btn btn-secondary" onclick="saveWheel()">Apply</button></div>
            </div>
            <div class="card">
                <h2>Keys</h2>
                <table id="keys"></table>
            </div>
        </div>
    </div>
    <div id="status-bar"></div>

    <script>
        const GESTURES = {{.Gestures}};
        let state = null;

        function keyID(e) {
            const c = e.code;
            if (c.startsWith('Key')) return 'KEY_' + c.slice(3);
            if (c.startsWith('Digit')) return 'KEY_' + c.slice(5);
            const named = {
                Space: 'KEY_SPACE', Tab: 'KEY_TAB', Backquote: 'KEY_GRAVE', Enter: 'KEY_ENTER',
                Escape: 'KEY_ESC', ShiftLeft: 'KEY_LEFTSHIFT', ShiftRight: 'KEY_RIGHTSHIFT',
                ControlLeft: 'KEY_LEFTCTRL', ControlRight: 'KEY_RIGHTCTRL', AltLeft: 'KEY_LEFTALT',
                AltRight: 'KEY_RIGHTALT', CapsLock: 'KEY_CAPSLOCK', Minus: 'KEY_MINUS', Equal: 'KEY_EQUAL',
                BracketLeft: 'KEY_LEFTBRACE', BracketRight: 'KEY_RIGHTBRACE', Semicolon: 'KEY_SEMICOLON',
                Quote: 'KEY_APOSTROPHE', Comma: 'KEY_COMMA', Period: 'KEY_DOT', Slash: 'KEY_SLASH',
                Backslash: 'KEY_BACKSLASH', Backspace: 'KEY_BACKSPACE',
                ArrowUp: 'KEY_UP', ArrowDown: 'KEY_DOWN', ArrowLeft: 'KEY_LEFT', ArrowRight: 'KEY_RIGHT'
            };
            if (named[c]) return named[c];
            if (/^F\d+$/.test(c)) return 'KEY_' + c;
            return null;
        }

        async function post(path, body) {
            const opts = { method: 'POST' };
            if (body !== undefined) {
                opts.headers = { 'Content-Type': 'application/json' };
                opts.body = JSON.stringify(body);
            }
            const res = await fetch(path, opts);
            if (!res.ok) {
                showStatus(await res.text());
                return null;
            }
            return res.json();
        }

        function showStatus(text) {
            const bar = document.getElementById('status-bar');
            bar.textContent = text;
            bar.style.display = text ? 'block' : 'none';
        }

        async function discover() {
            const el = document.getElementById('devices');
            el.textContent = 'scanning...';
            const res = await fetch('/api/discover');
            if (!res.ok) { el.textContent = await res.text(); return; }
            const found = await res.json();
            el.textContent = found.length ? found.map(b => b.url + ' (' + b.keys + ' keys)').join(', ') : 'none found';
        }

        function arm(target, key) { post('/api/arm', { target: target, key: key }); }

        document.addEventListener('keydown', e => {
            if (e.target.tagName === 'INPUT' || e.repeat) return;
            const key = keyID(e);
            if (!key) return;
            e.preventDefault();
            post('/api/keydown', { key: key });
        });
        document.addEventListener('keyup', e => {
            if (e.target.tagName === 'INPUT') return;
            const key = keyID(e);
            if (key) post('/api/keyup', { key: key });
        });

        const shot = document.getElementById('shot');
        shot.addEventListener('mousedown', e => {
            if (e.button === 2) return;
            const r = shot.getBoundingClientRect();
            post('/api/click', {
                x: e.clientX - r.left, y: e.clientY - r.top,
                w: Math.round(r.width), h: Math.round(r.height)
            });
        });
        shot.addEventListener('contextmenu', e => {
            e.preventDefault();
            post('/api/select', { key: 'BTN_RIGHT' });
        });
        shot.addEventListener('wheel', e => {
            e.preventDefault();
            post('/api/select', { key: e.deltaY < 0 ? 'REL_WHEEL_UP' : 'REL_WHEEL_DOWN' });
        });

        document.getElementById('upload').addEventListener('change', async e => {
            const file = e.target.files[0];
            if (!file) return;
            const res = await fetch('/api/image', { method: 'POST', body: file });
            if (!res.ok) showStatus(await res.text());
        });

        function saveWheel() {
            const num = id => parseFloat(document.getElementById(id).value);
            post('/api/wheel', { range: num('range'), shift: num('shift') });
            post('/api/toggles', {
                shift_range_enable: document.getElementById('shift-enable').checked,
                shift_range_switch_enable: document.getElementById('shift-switch').checked
            });
            post('/api/speed', { x: num('speed-x'), y: num('speed-y') });
            const wasd = document.getElementById('wasd').value.split(',').map(s => s.trim());
            if (wasd.length === 4) post('/api/wasd', { keys: wasd });
        }

        function renderKeys(doc, capture) {
            const table = document.getElementById('keys');
            table.innerHTML = '';
            for (const [key, entry] of Object.entries(doc.KEY_MAPS)) {
                const tr = document.createElement('tr');
                if (capture.selected === key) tr.className = 'selected';

                const name = document.createElement('td');
                name.textContent = key;
                name.onclick = () => post('/api/select', { key: key });
                tr.appendChild(name);

                const type = document.createElement('td');
                const sel = document.createElement('select');
                for (const g of GESTURES) {
                    const o = document.createElement('option');
                    o.value = o.textContent = g;
                    o.selected = g === entry.TYPE;
                    sel.appendChild(o);
                }
                sel.onchange = () => post('/api/retype', { key: key, type: sel.value });
                type.appendChild(sel);
                tr.appendChild(type);

                const ops = document.createElement('td');
                if (entry.INTERVAL) {
                    const iv = document.createElement('input');
                    iv.type = 'text';
                    iv.size = 6;
                    iv.value = entry.INTERVAL.join(',');
                    iv.onchange = () => post('/api/interval', { key: key, values: iv.value.split(',').map(Number) });
                    ops.appendChild(iv);
                }
                if (entry.TYPE === 'DRAG' || entry.TYPE === 'MULT_PRESS') {
                    const add = document.createElement('button');
                    add.className = 'btn btn-secondary';
                    add.textContent = '+pt';
                    add.onclick = () => arm('point', key);
                    ops.appendChild(add);
                    const pts = entry.POS_S || [];
                    if (pts.length) {
                        const rm = document.createElement('button');
                        rm.className = 'btn btn-secondary';
                        rm.textContent = '-pt';
                        rm.onclick = () => post('/api/point/remove', { key: key, index: pts.length - 1 });
                        ops.appendChild(rm);
                    }
                }
                const del = document.createElement('button');
                del.className = 'btn btn-danger';
                del.textContent = 'x';
                del.onclick = () => post('/api/delete', { key: key });
                ops.appendChild(del);
                tr.appendChild(ops);

                table.appendChild(tr);
            }
        }

        function renderSwitchKeys(doc) {
            const row = document.getElementById('switch-keys');
            row.innerHTML = '';
            (doc.SWITCH_KEYS || []).forEach((k, i) => {
                const chip = document.createElement('span');
                chip.className = 'chip';
                chip.textContent = k + ' x';
                chip.onclick = () => post('/api/switch-key/remove', { index: i });
                row.appendChild(chip);
            });
        }

        function renderPanel(doc) {
            const set = (id, v) => { const el = document.getElementById(id); if (document.activeElement !== el) el.value = v; };
            set('range', doc.WHEEL.RANGE);
            set('shift', doc.WHEEL.SHIFT_RANGE);
            set('wasd', (doc.WHEEL.WASD || []).join(','));
            set('speed-x', doc.MOUSE.SPEED[0]);
            set('speed-y', doc.MOUSE.SPEED[1]);
            document.getElementById('shift-enable').checked = doc.WHEEL.SHIFT_RANGE_ENABLE;
            document.getElementById('shift-switch').checked = doc.WHEEL.SHIFT_RANGE_SWITCH_ENABLE;
        }

        async function drawOverlay() {
            const canvas = document.getElementById('overlay');
            const w = Math.round(shot.clientWidth), h = Math.round(shot.clientHeight);
            if (!w || !h) return;
            canvas.width = w;
            canvas.height = h;
            const res = await fetch('/api/overlay?w=' + w + '&h=' + h);
            if (!res.ok) return;
            const ov = await res.json();
            const ctx = canvas.getContext('2d');
            ctx.clearRect(0, 0, w, h);
            ctx.font = '12px sans-serif';

            ctx.strokeStyle = '#a5b4fc';
            ctx.beginPath();
            ctx.arc(ov.wheel.center.X, ov.wheel.center.Y, ov.wheel.radius, 0, 2 * Math.PI);
            ctx.stroke();
            if (ov.wheel.shift_radius) {
                ctx.setLineDash([4, 4]);
                ctx.beginPath();
                ctx.arc(ov.wheel.center.X, ov.wheel.center.Y, ov.wheel.shift_radius, 0, 2 * Math.PI);
                ctx.stroke();
                ctx.setLineDash([]);
            }

            ctx.fillStyle = '#f6d365';
            ctx.fillRect(ov.view_center.X - 4, ov.view_center.Y - 4, 8, 8);

            for (const m of ov.keys) {
                ctx.fillStyle = m.key === state.capture.selected ? '#fda085' : '#667eea';
                m.points.forEach((p, i) => {
                    ctx.beginPath();
                    ctx.arc(p.X, p.Y, 6, 0, 2 * Math.PI);
                    ctx.fill();
                    ctx.fillText(m.points.length > 1 ? m.key + ' ' + (i + 1) : m.key, p.X + 8, p.Y + 4);
                });
            }
        }

        function render(snapshot) {
            state = snapshot;
            const doc = snapshot.document;
            if (shot.src !== doc.IMG) shot.src = doc.IMG;
            renderKeys(doc, snapshot.capture);
            renderSwitchKeys(doc);
            renderPanel(doc);
            const c = snapshot.capture;
            document.getElementById('capture').textContent =
                'pressed: ' + (c.pressed.join(' ') || '-') + '  selected: ' + (c.selected || '-') + '  pending: ' + c.pending;
            showStatus(snapshot.status);
            drawOverlay();
        }

        shot.addEventListener('load', drawOverlay);
        window.addEventListener('resize', drawOverlay);

        function connect() {
            const ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onmessage = e => {
                const msg = JSON.parse(e.data);
                if (msg.type === 'snapshot') render(msg.payload);
            };
            ws.onclose = () => setTimeout(connect, 2000);
        }

        setInterval(async () => {
            const res = await fetch('/api/status');
            if (res.ok) showStatus((await res.json()).text);
        }, 500);

        fetch('/api/state').then(r => r.json()).then(render);
        connect();
    </script>
</body>
</html>
`))
