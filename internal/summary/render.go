package summary

import (
	"fmt"
	"html/template"
	"io"
	"text/tabwriter"
	"time"
)

// RenderText writes the summary as an aligned table.
func RenderText(w io.Writer, entries []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST\tAVG CPU %\tMAX MEM MB\tAVG DISK KB/S\tSIZE MB")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%.1f\t%.0f\t%.1f\t%.1f\n",
			e.Test, e.AvgCPU, e.MaxMem, e.AvgDisk, e.SizeMB)
	}
	return tw.Flush()
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Capture Test Report</title>
<link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css" rel="stylesheet">
</head>
<body class="p-4">
<div class="container">
<h1>Capture Test Report</h1>
<p class="text-muted">Generated {{.Generated}} &mdash; {{len .Entries}} tests, sorted by average CPU</p>
<table class="table table-striped table-hover">
<thead>
<tr>
<th>Test</th>
<th class="text-end">Avg CPU %</th>
<th class="text-end">Max Mem MB</th>
<th class="text-end">Avg Disk KB/s</th>
<th class="text-end">Size MB</th>
</tr>
</thead>
<tbody>
{{range .Entries}}<tr{{if eq .SizeMB 0.0}} class="table-warning"{{end}}>
<td><code>{{.Test}}</code></td>
<td class="text-end">{{printf "%.1f" .AvgCPU}}</td>
<td class="text-end">{{printf "%.0f" .MaxMem}}</td>
<td class="text-end">{{printf "%.1f" .AvgDisk}}</td>
<td class="text-end">{{printf "%.1f" .SizeMB}}</td>
</tr>
{{end}}</tbody>
</table>
</div>
</body>
</html>
`))

// RenderHTML writes the summary as a standalone HTML report. Rows whose
// recording is missing are highlighted.
func RenderHTML(w io.Writer, entries []Entry) error {
	return reportTemplate.Execute(w, struct {
		Generated string
		Entries   []Entry
	}{
		Generated: time.Now().Format("2006-01-02 15:04:05"),
		Entries:   entries,
	})
}
