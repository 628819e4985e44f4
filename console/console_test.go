package console

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/feauxviz/engine"
	"github.com/colorfulnotion/feauxviz/storage"
)

func newConsole(t *testing.T) (*Console, *engine.MockChannel, *bytes.Buffer) {
	t.Helper()
	ps, err := storage.NewMemoryPersistenceStore()
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	lib, err := storage.NewLibrary(8)
	require.NoError(t, err)

	mock := engine.NewMockChannel(engine.DefaultArenaSize)
	var out bytes.Buffer
	c, err := New(context.Background(), engine.NewClient(mock), storage.NewProgramStore(ps, lib), &out)
	require.NoError(t, err)
	return c, mock, &out
}

func TestLoadAndSpawn(t *testing.T) {
	c, mock, _ := newConsole(t)

	v, err := c.Eval(`feaux.load("spin", "work 3")`)
	require.NoError(t, err)
	assert.EqualValues(t, 4, v.ToInteger())

	v, err = c.Eval(`feaux.spawn("spin")`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.ToInteger())

	v, err = c.Eval(`var s = feaux.os(); s.processes[0].name + ":" + s.ready_list.length`)
	require.NoError(t, err)
	assert.Equal(t, "spin:1", v.String())

	v, err = c.Eval(`feaux.entry("spin")`)
	require.NoError(t, err)
	instrs, ok := mock.Program("spin")
	require.True(t, ok)
	assert.Len(t, instrs, 4)
	assert.Positive(t, v.ToInteger())
}

func TestSettings(t *testing.T) {
	c, _, _ := newConsole(t)
	_, err := c.Eval(`feaux.cores(4); feaux.clock(25); feaux.strategy("srt"); feaux.pause()`)
	require.NoError(t, err)

	v, err := c.Eval(`var m = feaux.machine(); [m.num_cores, m.clock_delay].join(",")`)
	require.NoError(t, err)
	assert.Equal(t, "4,25", v.String())

	v, err = c.Eval(`feaux.os().paused`)
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())
}

func TestErrorsAreThrown(t *testing.T) {
	c, _, _ := newConsole(t)
	for _, src := range []string{
		`feaux.load("bad", "xyz")`,
		`feaux.spawn("ghost")`,
		`feaux.strategy("lottery")`,
		`feaux.cores(0)`,
		`feaux.launch()`,
		`feaux.load("onlyname")`,
	} {
		_, err := c.Eval(src)
		assert.Error(t, err, src)
	}

	v, err := c.Eval(`try { feaux.load("bad", "xyz"); "ok" } catch (e) { String(e) }`)
	require.NoError(t, err)
	assert.Contains(t, v.String(), "xyz")
}

func TestStoreBindings(t *testing.T) {
	c, mock, _ := newConsole(t)
	_, err := c.Eval(`feaux.save("idle", "nop\nexit")`)
	require.NoError(t, err)

	v, err := c.Eval(`feaux.programs().join(",")`)
	require.NoError(t, err)
	assert.Equal(t, "idle", v.String())

	v, err = c.Eval(`feaux.install("idle")`)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v.ToInteger())
	_, ok := mock.Program("idle")
	assert.True(t, ok)
}

func TestPrintTreeAndAsm(t *testing.T) {
	c, _, out := newConsole(t)
	_, err := c.Eval(`print(feaux.asm("top:\nwork 2\ncmp rax, rbx\nje top"))`)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "work 2")

	v, err := c.Eval(`feaux.tree()`)
	require.NoError(t, err)
	assert.NotEmpty(t, v.String())

	v, err = c.Eval(`feaux.help()`)
	require.NoError(t, err)
	assert.Contains(t, v.String(), "feaux.spawn")
}
