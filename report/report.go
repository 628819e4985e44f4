// Package report renders recorded frames as an HTML chart page.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/colorfulnotion/feauxviz/snapshot"
)

// Sample is the per-tick summary plotted on the timeline.
type Sample struct {
	Tick     uint64
	Time     int32
	Ready    int
	Running  int
	Blocked  int
	IOQueued int
}

// Report accumulates frames in tick order.
type Report struct {
	Title   string
	samples []Sample
	last    *snapshot.Frame
}

func New(title string) *Report {
	return &Report{Title: title}
}

// Add folds one frame into the report. It has the signature of a
// recorder.Replay callback.
func (r *Report) Add(f *snapshot.Frame) error {
	if f == nil || f.OS == nil {
		return fmt.Errorf("report: tick %d has no scheduler state", tickOf(f))
	}
	if r.last != nil && f.Tick <= r.last.Tick {
		return fmt.Errorf("report: tick %d after %d", f.Tick, r.last.Tick)
	}
	r.samples = append(r.samples, summarize(f))
	r.last = f
	return nil
}

func tickOf(f *snapshot.Frame) uint64 {
	if f == nil {
		return 0
	}
	return f.Tick
}

func summarize(f *snapshot.Frame) Sample {
	s := Sample{Tick: f.Tick, Time: f.OS.Time, Ready: len(f.OS.ReadyList), IOQueued: len(f.OS.IORequests)}
	for _, level := range f.OS.MLFReadyLists {
		s.Ready += len(level)
	}
	for _, p := range f.OS.Running {
		if p != nil {
			s.Running++
		}
	}
	for _, p := range f.OS.Processes {
		if p.State == snapshot.Blocked {
			s.Blocked++
		}
	}
	return s
}

func (r *Report) Samples() []Sample {
	return r.samples
}

// processorTime charts required against elapsed processor time for every
// process in the latest frame, ordered by pid.
func (r *Report) processorTime() *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: r.Title, Subtitle: "processor time per process, latest frame"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	var procs []snapshot.Process
	if r.last != nil {
		procs = append(procs, r.last.OS.Processes...)
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].ID < procs[j].ID })

	names := make([]string, 0, len(procs))
	required := make([]opts.BarData, 0, len(procs))
	elapsed := make([]opts.BarData, 0, len(procs))
	for _, p := range procs {
		names = append(names, fmt.Sprintf("%d:%s", p.ID, p.Name))
		required = append(required, opts.BarData{Value: p.RequiredProcessorTime})
		elapsed = append(elapsed, opts.BarData{Value: p.ElapsedProcessorTime})
	}
	bar.SetXAxis(names).
		AddSeries("required", required).
		AddSeries("elapsed", elapsed)
	return bar
}

func (r *Report) timeline() *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Scheduler queues", Subtitle: "per recorded tick"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	ticks := make([]string, 0, len(r.samples))
	ready := make([]opts.LineData, 0, len(r.samples))
	running := make([]opts.LineData, 0, len(r.samples))
	blocked := make([]opts.LineData, 0, len(r.samples))
	queued := make([]opts.LineData, 0, len(r.samples))
	for _, s := range r.samples {
		ticks = append(ticks, fmt.Sprintf("%d", s.Tick))
		ready = append(ready, opts.LineData{Value: s.Ready})
		running = append(running, opts.LineData{Value: s.Running})
		blocked = append(blocked, opts.LineData{Value: s.Blocked})
		queued = append(queued, opts.LineData{Value: s.IOQueued})
	}
	line.SetXAxis(ticks).
		AddSeries("ready", ready).
		AddSeries("running", running).
		AddSeries("blocked", blocked).
		AddSeries("io requests", queued)
	return line
}

// Render writes the chart page.
func (r *Report) Render(w io.Writer) error {
	page := components.NewPage()
	page.AddCharts(r.processorTime(), r.timeline())
	return page.Render(w)
}
