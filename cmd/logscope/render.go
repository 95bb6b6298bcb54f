package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tinytelemetry/logscope/internal/model"
	"github.com/tinytelemetry/logscope/internal/sitemap"
)

var (
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold   = lipgloss.NewStyle().Bold(true)

	check = green.Render("●")
	dot   = dim.Render("●")
)

const logo = `
    ╦  ╔═╗╔═╗╔═╗╔═╗╔═╗╔═╗╔═╗
    ║  ║ ║║ ╦╚═╗║  ║ ║╠═╝║╣
    ╩═╝╚═╝╚═╝╚═╝╚═╝╚═╝╩  ╚═╝`

func separator() string {
	return dim.Render("    ─────────────────────────────────")
}

func header() []string {
	return []string{
		"",
		cyan.Bold(true).Render(logo),
		"    " + dim.Render("v"+version),
		"",
		separator(),
		"",
	}
}

func line(mark, label, value string) string {
	return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
}

func printIngestSummary(w io.Writer, cfg appConfig, res ingestResult) {
	lines := header()

	lines = append(lines, bold.Render("    Ingest complete"))
	lines = append(lines, "")
	lines = append(lines, line(check, "Input", dim.Render(shortenPath(res.Input))))
	lines = append(lines, line(check, "Dataset", cyan.Render(shortenPath(res.Target))))
	lines = append(lines, line(check, "Mode", dim.Render(string(res.Mode))))
	lines = append(lines, line(check, "Records", green.Render(strconv.FormatInt(res.Records, 10))))
	lines = append(lines, line(check, "Batches", dim.Render(fmt.Sprintf("%d of up to %d records", res.Batches, cfg.BatchSize))))
	lines = append(lines, line(check, "Run ID", dim.Render(res.RunID)))
	if cfg.CaptureLatency {
		lines = append(lines, line(check, "Latency", dim.Render("captured")))
	} else {
		lines = append(lines, line(dot, "Latency", dim.Render("not captured")))
	}
	if len(res.Exported) > 0 {
		lines = append(lines, line(check, "Export", dim.Render(fmt.Sprintf("%d objects to %s", len(res.Exported), cfg.ExportBucketURL))))
	} else {
		lines = append(lines, line(dot, "Export", dim.Render("disabled")))
	}
	lines = append(lines, line(check, "Elapsed", dim.Render(res.Elapsed.Round(time.Millisecond).String())))

	lines = append(lines, "")
	lines = append(lines, separator())
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func printServeBanner(w io.Writer, cfg appConfig, addr, dataset string, units int) {
	lines := header()

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, line(check, "HTTP API", cyan.Render(addr)))
	lines = append(lines, line(check, "Metrics", cyan.Render(addr+"/metrics")))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Dataset"))
	lines = append(lines, "")
	lines = append(lines, line(check, "Path", dim.Render(shortenPath(dataset))))
	lines = append(lines, line(check, "Units", dim.Render(strconv.Itoa(units))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, line(check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, line(dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator())
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dim).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return bold.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

func section(w io.Writer, title string, t *table.Table) {
	fmt.Fprintln(w, bold.Render(title))
	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w)
}

func pathRows(rows []model.PathCount) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{r.Path, strconv.FormatInt(r.Hits, 10)}
	}
	return out
}

func printReport(w io.Writer, r *model.Report, diff *sitemap.Report) {
	fmt.Fprintf(w, "%s %s\n\n", bold.Render("Records"), green.Render(strconv.FormatInt(r.Records, 10)))

	section(w, "Top paths", newTable("PATH", "HITS").Rows(pathRows(r.TopPaths)...))

	st := newTable("STATUS", "HITS")
	for _, s := range r.Statuses {
		code := strconv.Itoa(int(s.Status))
		if s.Status >= 400 {
			code = red.Render(code)
		}
		st.Row(code, strconv.FormatInt(s.Count, 10))
	}
	section(w, "Status codes", st)

	tl := newTable("BUCKET", "HITS")
	for _, b := range r.Timeline {
		tl.Row(b.Bucket.Format(time.RFC3339), strconv.FormatInt(b.Hits, 10))
	}
	section(w, "Hits over time", tl)

	section(w, "Top 404s", newTable("PATH", "HITS").Rows(pathRows(r.Top404s)...))

	if r.Latency != nil {
		lt := newTable("PATH", "P95 (s)", "SAMPLES")
		for _, l := range r.Latency {
			lt.Row(l.Path, strconv.FormatFloat(l.P95, 'f', 3, 64), strconv.FormatInt(l.Samples, 10))
		}
		section(w, "p95 latency", lt)
	}

	section(w, "Bot vs human", newTable("CLASS", "HITS").
		Row("bot", strconv.FormatInt(r.Bots.Bot, 10)).
		Row("human", strconv.FormatInt(r.Bots.Human, 10)))

	ft := newTable("FAMILY", "BOT", "HITS")
	for _, f := range r.TopFamilies {
		ft.Row(f.Family, strconv.FormatBool(f.Bot), strconv.FormatInt(f.Hits, 10))
	}
	section(w, "User-agent families", ft)

	if diff != nil {
		dt := newTable("KIND", "ENTRY")
		for _, o := range diff.Orphans {
			dt.Row("crawled, not in sitemap", o)
		}
		for _, m := range diff.Missed {
			dt.Row("in sitemap, not crawled", m)
		}
		section(w, fmt.Sprintf("Sitemap diff (%d orphans, %d missed)", len(diff.Orphans), len(diff.Missed)), dt)
	}
}

func printQueryResult(w io.Writer, rows []map[string]any) {
	if len(rows) == 0 {
		fmt.Fprintln(w, dim.Render("(no rows)"))
		return
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	t := newTable(cols...)
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = formatCell(r[c])
		}
		t.Row(cells...)
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w, dim.Render(fmt.Sprintf("%d rows", len(rows))))
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
