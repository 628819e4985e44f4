package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/feauxviz/engine"
	"github.com/colorfulnotion/feauxviz/snapshot"
)

func TestReportFromMockEngine(t *testing.T) {
	ctx := context.Background()
	client := engine.NewClient(engine.NewMockChannel(engine.DefaultArenaSize))
	_, err := client.CompileAndLoad(ctx, "cruncher", "work 5")
	require.NoError(t, err)

	r := New("feauxviz run")
	for tick := uint64(0); tick < 3; tick++ {
		_, err := client.Spawn(ctx, "cruncher")
		require.NoError(t, err)
		f, err := client.Snapshot(ctx, tick)
		require.NoError(t, err)
		require.NoError(t, r.Add(f))
	}

	samples := r.Samples()
	require.Len(t, samples, 3)
	for i, s := range samples {
		assert.Equal(t, uint64(i), s.Tick)
		assert.Equal(t, i+1, s.Ready)
		assert.Zero(t, s.Running)
	}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	html := buf.String()
	assert.Contains(t, html, "feauxviz run")
	assert.Contains(t, html, "Scheduler queues")
	assert.Contains(t, html, "1:cruncher")
}

func TestSummarize(t *testing.T) {
	running := snapshot.Process{ID: 2, State: snapshot.Processing}
	f := &snapshot.Frame{
		Tick: 7,
		OS: &snapshot.OSState{
			Time:      40,
			ReadyList: []snapshot.Process{{ID: 1}},
			Processes: []snapshot.Process{
				{ID: 1, State: snapshot.Ready},
				running,
				{ID: 3, State: snapshot.Blocked},
			},
			IORequests: []snapshot.IORequest{{PID: 3, Duration: 4}},
			Running:    []*snapshot.Process{&running, nil},
		},
	}
	f.OS.MLFReadyLists[2] = []snapshot.Process{{ID: 4}}

	assert.Equal(t, Sample{Tick: 7, Time: 40, Ready: 2, Running: 1, Blocked: 1, IOQueued: 1}, summarize(f))
}

func TestAddRejectsOutOfOrder(t *testing.T) {
	r := New("t")
	require.NoError(t, r.Add(&snapshot.Frame{Tick: 3, OS: &snapshot.OSState{}}))
	assert.Error(t, r.Add(&snapshot.Frame{Tick: 3, OS: &snapshot.OSState{}}))
	assert.Error(t, r.Add(&snapshot.Frame{Tick: 4}))
	assert.Error(t, r.Add(nil))
	assert.Len(t, r.Samples(), 1)
}
