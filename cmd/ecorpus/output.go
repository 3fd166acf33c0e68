package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"ecorpus-go/internal/app"
	"ecorpus-go/internal/model"
)

// stdout receives every table.
var stdout io.Writer = os.Stdout

func newTable(headers ...string) *tablewriter.Table {
	var table = tablewriter.NewWriter(stdout)
	table.Header(headers)
	return table
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05") + " (" + humanize.Time(t) + ")"
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func printFiles(files []*model.FileProps) {
	var table = newTable("Name", "Gen", "Size", "Mime", "Author", "Modified")
	for _, f := range files {
		size := formatSize(f.Size)
		switch {
		case f.IsFolder():
			size = "-"
		case f.Deleted():
			size = "deleted"
		}
		table.Append([]string{
			f.Name,
			formatID(f.Generation),
			size,
			f.Mime,
			f.Author,
			formatTime(f.Mtime),
		})
	}
	table.Render()
}

func printScenes(scenes []*model.Scene) {
	var table = newTable("ID", "Name", "Author", "Access", "Modified")
	for _, s := range scenes {
		table.Append([]string{
			formatID(s.ID),
			s.Name,
			s.Author,
			s.Access.User.String(),
			formatTime(s.Mtime),
		})
	}
	table.Render()
}

// printMetrics writes the counters gathered from the app's registry to stderr.
func printMetrics(a *app.App) {
	families, err := a.Registry().Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gathering metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			default:
				continue
			}
			labels := ""
			for _, l := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", l.GetName(), l.GetValue())
			}
			fmt.Fprintf(os.Stderr, "%s%s %g\n", mf.GetName(), labels, value)
		}
	}
}
