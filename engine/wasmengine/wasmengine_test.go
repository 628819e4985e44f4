package wasmengine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/colorfulnotion/feauxviz/engine"
	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, body []byte) []byte {
	return append(append([]byte{id}, uleb(uint32(len(body)))...), body...)
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

const i32 = 0x7f

// stubFunc is an exported function that ignores its arguments and returns a
// constant when it has a result, or traps.
type stubFunc struct {
	name    string
	params  int
	result  bool
	returns int32
	trap    bool
}

// stubEngine builds a module exporting a 1-page memory and the given
// functions, with no main loop.
func stubEngine(funcs []stubFunc) []byte {
	return buildStub(funcs, false)
}

// loopingStubEngine adds a main that calls jssleep(1) forever.
func loopingStubEngine(funcs []stubFunc) []byte {
	return buildStub(funcs, true)
}

func buildStub(funcs []stubFunc, loop bool) []byte {
	var types, imports, fidx, exports, code [][]byte
	base := uint32(0)
	if loop {
		base = 1
	}
	for i, f := range funcs {
		params := make([]byte, f.params)
		for j := range params {
			params[j] = i32
		}
		var results []byte
		if f.result {
			results = []byte{i32}
		}
		ft := append([]byte{0x60}, uleb(uint32(len(params)))...)
		ft = append(ft, params...)
		ft = append(ft, uleb(uint32(len(results)))...)
		ft = append(ft, results...)
		types = append(types, ft)
		fidx = append(fidx, uleb(uint32(i)))
		exports = append(exports, append(name(f.name), append([]byte{0x00}, uleb(base+uint32(i))...)...))

		body := []byte{0x00}
		switch {
		case f.trap:
			body = append(body, 0x00)
		case f.result:
			body = append(append(body, 0x41), sleb(f.returns)...)
		}
		body = append(body, 0x0b)
		code = append(code, append(uleb(uint32(len(body))), body...))
	}
	if loop {
		sleepType := uint32(len(types))
		types = append(types, []byte{0x60, 0x01, i32, 0x00}, []byte{0x60, 0x00, 0x00})
		imports = append(imports, append(append(name("env"), name("jssleep")...), append([]byte{0x00}, uleb(sleepType)...)...))
		fidx = append(fidx, uleb(sleepType+1))
		exports = append(exports, append(name("main"), append([]byte{0x00}, uleb(base+uint32(len(funcs)))...)...))
		// loop { jssleep(1); br 0 }
		body := []byte{0x00, 0x03, 0x40, 0x41, 0x01, 0x10, 0x00, 0x0c, 0x00, 0x0b, 0x0b}
		code = append(code, append(uleb(uint32(len(body))), body...))
	}
	exports = append(exports, append(name("memory"), 0x02, 0x00))

	mod := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, section(1, vec(types...))...)
	if loop {
		mod = append(mod, section(2, vec(imports...))...)
	}
	mod = append(mod, section(3, vec(fidx...))...)
	mod = append(mod, section(5, vec([]byte{0x00, 0x01}))...)
	mod = append(mod, section(7, vec(exports...))...)
	mod = append(mod, section(10, vec(code...))...)
	return mod
}

var stubExports = []stubFunc{
	{name: "allocInstructionList", params: 1, result: true, returns: 1024},
	{name: "allocString", params: 1, result: true, returns: 2048},
	{name: "freeInstructionList", params: 1},
	{name: "freeString", params: 1},
	{name: "loadProgram", params: 3},
	{name: "spawn", params: 2, result: true, returns: -1},
	{name: "getMachineState", result: true, returns: 4096},
	{name: "getOSState", result: true, returns: 8192},
	{name: "pause"},
	{name: "unpause"},
	{name: "setClockDelay", params: 1},
	{name: "setSchedulingStrategy", params: 1},
	{name: "setNumCores", params: 1},
}

func TestStubEngineThroughClient(t *testing.T) {
	ctx := context.Background()
	ch, err := New(ctx, stubEngine(stubExports))
	require.NoError(t, err)
	defer ch.Close(ctx)

	c := engine.NewClient(ch)
	p, err := c.CompileAndLoad(ctx, "worker", "io 3\nexit")
	require.NoError(t, err)

	mem, err := ch.Memory(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(65536), mem.Size())
	assert.Equal(t, p.Instructions, program.ReadInstructions(mem, 1024, 2))
	assert.Equal(t, "worker", mem.ReadString(2048))

	_, err = c.Spawn(ctx, "worker")
	assert.ErrorIs(t, err, feauxerrors.ErrEUnknownProgram)

	frame, err := c.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, frame.Machine.NumCores)
	assert.Empty(t, frame.OS.Processes)
	assert.Empty(t, frame.OS.Running)

	require.NoError(t, c.SetCoreCount(ctx, 3))
	assert.ErrorIs(t, c.SetIODeviceCount(ctx, 1), feauxerrors.ErrEMissingExport)
	assert.ErrorIs(t, c.Dispatch(ctx, "worker", 1, 1, 0), feauxerrors.ErrEMissingExport)
}

func TestMissingExports(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, stubEngine(stubExports[:4]))
	assert.ErrorIs(t, err, feauxerrors.ErrEMissingExport)
	assert.Contains(t, err.Error(), "getOSState")

	_, err = Open(ctx, filepath.Join(t.TempDir(), "missing.wasm"))
	assert.ErrorIs(t, err, feauxerrors.ErrEEngineNotLoaded)
}

func TestEntryPointTrap(t *testing.T) {
	ctx := context.Background()
	funcs := append(append([]stubFunc{}, stubExports...),
		stubFunc{name: "getProgramLocation", params: 1, result: true, trap: true})
	ch, err := New(ctx, stubEngine(funcs))
	require.NoError(t, err)
	defer ch.Close(ctx)

	c := engine.NewClient(ch)
	_, err = c.EntryPoint(ctx, "ghost")
	assert.ErrorIs(t, err, feauxerrors.ErrECallFailed)
	assert.Contains(t, err.Error(), "getProgramEntryPoint")

	// the trap unwinds only that call
	_, err = c.CompileAndLoad(ctx, "worker", "work 1")
	require.NoError(t, err)
	frame, err := c.Snapshot(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, frame.Machine)
}

func TestLoopingEngineMemoryIsExclusive(t *testing.T) {
	ctx := context.Background()
	ch, err := New(ctx, loopingStubEngine(stubExports))
	require.NoError(t, err)
	require.True(t, ch.isLooping())

	_, err = ch.Memory(ctx)
	assert.ErrorIs(t, err, ErrNotExclusive)

	c := engine.NewClient(ch)
	p, err := c.CompileAndLoad(ctx, "worker", "io 3\nexit")
	require.NoError(t, err)

	err = ch.Exclusive(ctx, func(ctx context.Context) error {
		mem, err := ch.Memory(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, p.Instructions, program.ReadInstructions(mem, 1024, 2))
		assert.Equal(t, "worker", mem.ReadString(2048))
		// nested calls on the loop run inline
		_, err = ch.GetOSState(ctx)
		return err
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(tick uint64) {
			defer wg.Done()
			_, err := c.Snapshot(ctx, tick)
			assert.NoError(t, err)
		}(uint64(i))
	}
	wg.Wait()

	require.NoError(t, ch.Close(ctx))
	assert.False(t, ch.isLooping())
}
