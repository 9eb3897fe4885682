package server

import (
	"html/template"
	"io"

	"gridchase/grid_world"
)

var indexTemplate = template.Must(template.New("index.html").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>{{ .Title }}</title>
	<style>
		body { background: #222; color: #ddd; font-family: monospace; }
		canvas { background: #000; display: block; margin: 1em 0; }
	</style>
</head>
<body>
	<div id="title">{{ .Title }}</div>
	<canvas id="grid" width="{{ .Width }}" height="{{ .Height }}"></canvas>
	<div id="status"></div>
	<script>
		const colors = { player: "#0f0", goal: "#f00" };
		const canvas = document.getElementById("grid");
		const ctx = canvas.getContext("2d");
		const status = document.getElementById("status");
		const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");

		// Positions are cell centers.
		const fill = (sprite, x, y, dim) => {
			ctx.fillStyle = colors[sprite];
			ctx.fillRect(x - dim / 2, y - dim / 2, dim, dim);
		};

		ws.onmessage = (event) => {
			const frame = JSON.parse(event.data);
			ctx.clearRect(0, 0, canvas.width, canvas.height);
			for (const s of frame.sprites) {
				fill(s.sprite, s.x, s.y, frame.cellDim);
			}
			status.textContent = frame.status || "";
		};
		ws.onclose = () => { status.textContent = "session closed"; };

		document.addEventListener("keydown", (event) => {
			if (ws.readyState !== WebSocket.OPEN) {
				return;
			}
			const key = event.key === "Escape" ? "\x1b" : event.key;
			ws.send(JSON.stringify({ key: key }));
		});
	</script>
</body>
</html>
`))

func renderIndex(w io.Writer, grid grid_world.Config) error {
	return indexTemplate.Execute(w, grid)
}
