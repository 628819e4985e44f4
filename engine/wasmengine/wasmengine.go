// Package wasmengine binds the scheduling engine compiled to WebAssembly.
//
// The engine's main function initializes the simulated machine and then runs
// forever, yielding through the imported jssleep(ms) between ticks. The
// binding runs main on its own goroutine and services every Channel call from
// inside jssleep, so the module is only ever entered from that goroutine.
// Linear memory is shared with the running loop: Memory views are handed out
// only inside Exclusive, which runs a whole operation inside one jssleep.
// Engine builds without a main loop are called directly.
//
// A call that traps, such as an entry point lookup for a program the engine
// never loaded, fails with ErrECallFailed and leaves the module usable.
package wasmengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/memory"
	"github.com/colorfulnotion/feauxviz/snapshot"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/emscripten"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var requiredExports = []string{
	"allocInstructionList", "allocString", "freeInstructionList", "freeString",
	"loadProgram", "spawn", "getMachineState", "getOSState",
	"pause", "unpause", "setClockDelay", "setSchedulingStrategy",
}

// exports with older names in some engine builds
var exportAliases = map[string][]string{
	"getProgramEntryPoint": {"getProgramEntryPoint", "getProgramLocation"},
	"setCoreCount":         {"setCoreCount", "setNumCores"},
	"setIODeviceCount":     {"setIODeviceCount", "setNumIODevices"},
	"dispatch":             {"dispatch"},
}

var mainExports = []string{"_start", "main"}

// request is either one exported call or, when task is set, a run of calls
// made by Exclusive.
type request struct {
	fn     api.Function
	params []uint64
	task   func(ctx context.Context) error
	resp   chan response
}

// onLoopKey marks contexts handed to Exclusive tasks.
type onLoopKey struct{}

var ErrNotExclusive = errors.New("wasmengine: memory read outside Exclusive while the engine loop runs")

type response struct {
	results []uint64
	err     error
}

// Channel is an engine.Channel over a wazero module instance.
type Channel struct {
	runtime wazero.Runtime
	mod     api.Module
	fns     map[string]api.Function

	reqs   chan request
	cancel context.CancelFunc
	done   chan struct{}
	ready  chan struct{}
	once   sync.Once

	mu      sync.Mutex
	looping bool
	mainErr error
}

// Open loads the engine module at path.
func Open(ctx context.Context, path string) (*Channel, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feauxerrors.ErrEEngineNotLoaded, err)
	}
	return New(ctx, wasm)
}

// New compiles and instantiates the engine module and, if it has a main
// function, starts its loop and waits for the first yield.
func New(ctx context.Context, wasm []byte) (*Channel, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	r := wazero.NewRuntimeWithConfig(runCtx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	c := &Channel{
		runtime: r,
		fns:     make(map[string]api.Function),
		reqs:    make(chan request),
		cancel:  cancel,
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
	fail := func(err error) (*Channel, error) {
		cancel()
		r.Close(context.Background())
		return nil, err
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return fail(fmt.Errorf("compile engine: %w", err))
	}
	var missing []string
	defs := compiled.ExportedFunctions()
	for _, name := range requiredExports {
		if _, ok := defs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fail(fmt.Errorf("%w: %v", feauxerrors.ErrEMissingExport, missing))
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return fail(fmt.Errorf("instantiate wasi: %w", err))
	}
	exporter, err := emscripten.NewFunctionExporterForModule(compiled)
	if err != nil {
		return fail(fmt.Errorf("emscripten imports: %w", err))
	}
	env := r.NewHostModuleBuilder("env")
	exporter.ExportFunctions(env)
	env.NewFunctionBuilder().WithFunc(c.jssleep).Export("jssleep")
	if _, err := env.Instantiate(ctx); err != nil {
		return fail(fmt.Errorf("instantiate env: %w", err))
	}

	c.mod, err = r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("feaux-s").WithStartFunctions())
	if err != nil {
		return fail(fmt.Errorf("instantiate engine: %w", err))
	}
	for _, name := range requiredExports {
		c.fns[name] = c.mod.ExportedFunction(name)
	}
	for name, candidates := range exportAliases {
		for _, alias := range candidates {
			if fn := c.mod.ExportedFunction(alias); fn != nil {
				c.fns[name] = fn
				break
			}
		}
	}

	var entry api.Function
	for _, name := range mainExports {
		if entry = c.mod.ExportedFunction(name); entry != nil {
			break
		}
	}
	if entry == nil {
		close(c.done)
		log.Info(log.EngineMonitoring, "engine: loaded", "looping", false, "memory", c.mod.Memory().Size())
		return c, nil
	}

	c.looping = true
	go c.run(runCtx, entry)
	select {
	case <-c.ready:
	case <-c.done:
		c.mu.Lock()
		err := c.mainErr
		c.mu.Unlock()
		if err != nil {
			return fail(fmt.Errorf("engine main: %w", err))
		}
	case <-ctx.Done():
		return fail(ctx.Err())
	}
	log.Info(log.EngineMonitoring, "engine: loaded", "looping", c.isLooping(), "memory", c.mod.Memory().Size())
	return c, nil
}

func (c *Channel) run(ctx context.Context, entry api.Function) {
	defer close(c.done)
	params := make([]uint64, len(entry.Definition().ParamTypes()))
	_, err := entry.Call(ctx, params...)

	c.mu.Lock()
	c.looping = false
	if err != nil && ctx.Err() == nil {
		c.mainErr = err
		log.Error(log.EngineMonitoring, "engine: main loop stopped", "err", err)
	}
	c.mu.Unlock()
}

func (c *Channel) isLooping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.looping
}

// jssleep is the engine's yield point. Calls queued by other goroutines run
// here until ms have passed.
func (c *Channel) jssleep(ctx context.Context, ms int32) {
	c.once.Do(func() { close(c.ready) })
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	for {
		select {
		case req := <-c.reqs:
			if req.task != nil {
				req.resp <- response{err: req.task(context.WithValue(ctx, onLoopKey{}, c))}
				continue
			}
			results, err := req.fn.Call(ctx, req.params...)
			req.resp <- response{results: results, err: err}
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) onLoop(ctx context.Context) bool {
	return ctx.Value(onLoopKey{}) == c
}

// Exclusive runs fn inside the engine's next yield. Calls made with the ctx
// given to fn run inline, and the engine does not tick until fn returns.
func (c *Channel) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.onLoop(ctx) || !c.isLooping() {
		return fn(ctx)
	}
	req := request{task: fn, resp: make(chan response, 1)}
	select {
	case c.reqs <- req:
	case <-c.done:
		return fmt.Errorf("%w: engine stopped", feauxerrors.ErrECallFailed)
	case <-ctx.Done():
		return ctx.Err()
	}
	return (<-req.resp).err
}

func (c *Channel) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := c.fns[name]
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", feauxerrors.ErrEMissingExport, name)
	}
	var (
		results []uint64
		err     error
	)
	if c.isLooping() && !c.onLoop(ctx) {
		req := request{fn: fn, params: params, resp: make(chan response, 1)}
		select {
		case c.reqs <- req:
		case <-c.done:
			return nil, fmt.Errorf("%w: %s: engine stopped", feauxerrors.ErrECallFailed, name)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		resp := <-req.resp
		results, err = resp.results, resp.err
	} else {
		results, err = fn.Call(ctx, params...)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", feauxerrors.ErrECallFailed, name, err)
	}
	log.Trace(log.EngineMonitoring, "engine: call", "fn", name, "params", params, "results", results)
	return results, nil
}

func (c *Channel) callU32(ctx context.Context, name string, params ...uint64) (uint32, error) {
	res, err := c.call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("%w: %s returned nothing", feauxerrors.ErrECallFailed, name)
	}
	return api.DecodeU32(res[0]), nil
}

func (c *Channel) callVoid(ctx context.Context, name string, params ...uint64) error {
	_, err := c.call(ctx, name, params...)
	return err
}

// Memory returns a view of the engine's linear memory. Growth replaces the
// backing buffer, so the view is only good until the next call. While the
// main loop runs the view must be taken inside Exclusive.
func (c *Channel) Memory(ctx context.Context) (*memory.Memory, error) {
	if c.isLooping() && !c.onLoop(ctx) {
		return nil, ErrNotExclusive
	}
	mem := c.mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("%w: memory", feauxerrors.ErrEMissingExport)
	}
	buf, ok := mem.Read(0, mem.Size())
	if !ok {
		return nil, fmt.Errorf("%w: memory read", feauxerrors.ErrECallFailed)
	}
	return memory.New(buf), nil
}

func (c *Channel) AllocInstructionList(ctx context.Context, count uint32) (uint32, error) {
	return c.callU32(ctx, "allocInstructionList", api.EncodeU32(count))
}

func (c *Channel) AllocString(ctx context.Context, size uint32) (uint32, error) {
	return c.callU32(ctx, "allocString", api.EncodeU32(size))
}

func (c *Channel) FreeInstructionList(ctx context.Context, ptr uint32) error {
	return c.callVoid(ctx, "freeInstructionList", api.EncodeU32(ptr))
}

func (c *Channel) FreeString(ctx context.Context, ptr uint32) error {
	return c.callVoid(ctx, "freeString", api.EncodeU32(ptr))
}

func (c *Channel) LoadProgram(ctx context.Context, instrPtr uint32, count uint32, namePtr uint32) error {
	return c.callVoid(ctx, "loadProgram", api.EncodeU32(instrPtr), api.EncodeU32(count), api.EncodeU32(namePtr))
}

// Spawn starts a process. Builds whose spawn also takes a relative deadline
// get -1, meaning none.
func (c *Channel) Spawn(ctx context.Context, namePtr uint32) (int32, error) {
	params := []uint64{api.EncodeU32(namePtr)}
	if fn := c.fns["spawn"]; len(fn.Definition().ParamTypes()) == 2 {
		params = append(params, api.EncodeI32(-1))
	}
	pid, err := c.callU32(ctx, "spawn", params...)
	return int32(pid), err
}

func (c *Channel) Dispatch(ctx context.Context, namePtr uint32, period, deadline, delay uint32) error {
	return c.callVoid(ctx, "dispatch", api.EncodeU32(namePtr), api.EncodeU32(period), api.EncodeU32(deadline), api.EncodeU32(delay))
}

func (c *Channel) GetProgramEntryPoint(ctx context.Context, namePtr uint32) (int32, error) {
	at, err := c.callU32(ctx, "getProgramEntryPoint", api.EncodeU32(namePtr))
	return int32(at), err
}

func (c *Channel) GetMachineState(ctx context.Context) (uint32, error) {
	return c.callU32(ctx, "getMachineState")
}

func (c *Channel) GetOSState(ctx context.Context) (uint32, error) {
	return c.callU32(ctx, "getOSState")
}

func (c *Channel) Pause(ctx context.Context) error {
	return c.callVoid(ctx, "pause")
}

func (c *Channel) Unpause(ctx context.Context) error {
	return c.callVoid(ctx, "unpause")
}

func (c *Channel) SetClockDelay(ctx context.Context, ms uint32) error {
	return c.callVoid(ctx, "setClockDelay", api.EncodeU32(ms))
}

func (c *Channel) SetSchedulingStrategy(ctx context.Context, s snapshot.SchedulingStrategy) error {
	return c.callVoid(ctx, "setSchedulingStrategy", api.EncodeU32(uint32(s)))
}

func (c *Channel) SetCoreCount(ctx context.Context, n uint8) error {
	return c.callVoid(ctx, "setCoreCount", api.EncodeU32(uint32(n)))
}

func (c *Channel) SetIODeviceCount(ctx context.Context, n uint8) error {
	return c.callVoid(ctx, "setIODeviceCount", api.EncodeU32(uint32(n)))
}

// Close stops the main loop and releases the runtime.
func (c *Channel) Close(ctx context.Context) error {
	c.cancel()
	<-c.done
	err := c.runtime.Close(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(err, c.mainErr)
}
