package server

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>EEG Streamer</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
</head>
<body>
<main class="container">
    <h1>EEG Streamer</h1>
    <form id="start">
        <label>File name <input name="filename" required></label>
        <label>Duration (s) <input name="duration" type="number" min="1" value="60" required></label>
        <label>Music <select name="music" id="music"><option value="none">No Music</option></select></label>
        <div role="group">
            <button type="submit">Start</button>
            <button type="button" class="secondary" id="stop">Stop</button>
        </div>
    </form>
    <p><strong id="status">STANDBY</strong> <span id="message"></span></p>
    <img id="live" alt="live signal" style="width:100%">
    <h2>Recordings</h2>
    <ul id="recordings"></ul>
</main>
<script>
const $ = (id) => document.getElementById(id);

async function refreshStatus() {
    const res = await fetch('/status');
    const s = await res.json();
    $('status').textContent = s.status;
    $('message').textContent = s.message || '';
    if (s.status === 'RECORDING') {
        $('live').src = '/live.png?t=' + Date.now();
    }
}

async function refreshLists() {
    const music = await (await fetch('/api/music')).json();
    const none = document.createElement('option');
    none.value = 'none';
    none.textContent = 'No Music';
    $('music').replaceChildren(none);
    for (const t of music.tracks) {
        const o = document.createElement('option');
        o.value = o.textContent = t.name;
        $('music').appendChild(o);
    }
    const recs = await (await fetch('/api/recordings')).json();
    $('recordings').replaceChildren();
    for (const r of recs.recordings) {
        const li = document.createElement('li');
        const a = document.createElement('a');
        a.href = r.download_url;
        a.textContent = r.name;
        li.append(a, ' (' + r.size_human + ')');
        $('recordings').appendChild(li);
    }
}

$('start').addEventListener('submit', async (e) => {
    e.preventDefault();
    const res = await fetch('/start', {method: 'POST', body: new URLSearchParams(new FormData(e.target))});
    const body = await res.json();
    if (!body.success) alert(body.error);
});

$('stop').addEventListener('click', async () => {
    const body = await (await fetch('/stop', {method: 'POST'})).json();
    $('message').textContent = body.message || body.error;
    refreshLists();
});

setInterval(refreshStatus, 250);
refreshLists();
</script>
</body>
</html>`
