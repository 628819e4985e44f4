// Package console is an interactive JavaScript shell over the engine client.
//
//	> feaux.load("spin", "top:\nwork 3\ncmp rax, rax\nje top")
//	> feaux.spawn("spin")
//	> feaux.os().ready_list.length
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dop251/goja"

	"github.com/colorfulnotion/feauxviz/asm"
	"github.com/colorfulnotion/feauxviz/engine"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/snapshot"
	"github.com/colorfulnotion/feauxviz/storage"
)

type method func(args []goja.Value) (any, error)

type Console struct {
	ctx     context.Context
	client  *engine.Client
	store   *storage.ProgramStore
	vm      *goja.Runtime
	out     io.Writer
	methods map[string]method
	tick    uint64
}

// New binds the client, and the program store when one is given, into a
// fresh JavaScript runtime as the global object feaux.
func New(ctx context.Context, client *engine.Client, store *storage.ProgramStore, out io.Writer) (*Console, error) {
	c := &Console{
		ctx:    ctx,
		client: client,
		store:  store,
		vm:     goja.New(),
		out:    out,
	}
	c.methods = c.bindings()

	if err := c.vm.Set("engine_call", c.call); err != nil {
		return nil, err
	}
	if err := c.vm.Set("print", func(args ...goja.Value) {
		for _, arg := range args {
			fmt.Fprintln(c.out, arg.Export())
		}
	}); err != nil {
		return nil, err
	}
	_, err := c.vm.RunString(`
		var feaux = new Proxy({}, {
			get: function(target, method) {
				return function(...args) {
					return engine_call(method, ...args);
				};
			}
		});
	`)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Console) call(name string, args ...goja.Value) (goja.Value, error) {
	m, ok := c.methods[name]
	if !ok {
		return nil, fmt.Errorf("feaux.%s is not a function, try feaux.help()", name)
	}
	log.Debug(log.ConsoleMonitoring, "console: call", "method", name, "args", len(args))
	v, err := m(args)
	if err != nil {
		return nil, err
	}
	return c.toJS(v)
}

// toJS hands structured results to scripts as plain objects with the same
// field names the feed uses.
func (c *Console) toJS(v any) (goja.Value, error) {
	switch v := v.(type) {
	case nil:
		return goja.Undefined(), nil
	case string, bool, int, int32, uint32, uint64:
		return c.vm.ToValue(v), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return c.vm.ToValue(obj), nil
}

func argString(args []goja.Value, i int) (string, error) {
	if i >= len(args) || goja.IsUndefined(args[i]) || goja.IsNull(args[i]) {
		return "", fmt.Errorf("missing argument %d", i+1)
	}
	return args[i].String(), nil
}

func argInt(args []goja.Value, i int) (int, error) {
	if i >= len(args) || goja.IsUndefined(args[i]) || goja.IsNull(args[i]) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	return int(args[i].ToInteger()), nil
}

func (c *Console) bindings() map[string]method {
	m := map[string]method{
		"load": func(args []goja.Value) (any, error) {
			name, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			src, err := argString(args, 1)
			if err != nil {
				return nil, err
			}
			p, err := c.client.CompileAndLoad(c.ctx, name, src)
			if err != nil {
				return nil, err
			}
			return len(p.Instructions), nil
		},
		"spawn": func(args []goja.Value) (any, error) {
			name, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			return c.client.Spawn(c.ctx, name)
		},
		"dispatch": func(args []goja.Value) (any, error) {
			name, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			var v [3]int
			for i := range v {
				if v[i], err = argInt(args, i+1); err != nil {
					return nil, err
				}
			}
			return nil, c.client.Dispatch(c.ctx, name, uint32(v[0]), uint32(v[1]), uint32(v[2]))
		},
		"entry": func(args []goja.Value) (any, error) {
			name, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			return c.client.EntryPoint(c.ctx, name)
		},
		"pause": func([]goja.Value) (any, error) {
			return nil, c.client.Pause(c.ctx)
		},
		"unpause": func([]goja.Value) (any, error) {
			return nil, c.client.Unpause(c.ctx)
		},
		"clock": func(args []goja.Value) (any, error) {
			ms, err := argInt(args, 0)
			if err != nil {
				return nil, err
			}
			if ms < 0 {
				return nil, fmt.Errorf("clock delay %d", ms)
			}
			return nil, c.client.SetClockDelay(c.ctx, uint32(ms))
		},
		"strategy": func(args []goja.Value) (any, error) {
			name, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			s, err := snapshot.ParseStrategy(name)
			if err != nil {
				return nil, err
			}
			return nil, c.client.SetSchedulingStrategy(c.ctx, s)
		},
		"cores": func(args []goja.Value) (any, error) {
			n, err := argInt(args, 0)
			if err != nil {
				return nil, err
			}
			return nil, c.client.SetCoreCount(c.ctx, n)
		},
		"io": func(args []goja.Value) (any, error) {
			n, err := argInt(args, 0)
			if err != nil {
				return nil, err
			}
			return nil, c.client.SetIODeviceCount(c.ctx, n)
		},
		"machine": func([]goja.Value) (any, error) {
			return c.client.MachineState(c.ctx)
		},
		"os": func([]goja.Value) (any, error) {
			return c.client.OSState(c.ctx)
		},
		"tree": func([]goja.Value) (any, error) {
			f, err := c.client.Snapshot(c.ctx, c.tick)
			if err != nil {
				return nil, err
			}
			c.tick++
			return f.Tree(), nil
		},
		"asm": func(args []goja.Value) (any, error) {
			src, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			instrs, err := asm.Compile(src)
			if err != nil {
				return nil, err
			}
			return asm.Disassemble(instrs)
		},
	}
	if c.store != nil {
		m["save"] = func(args []goja.Value) (any, error) {
			name, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			src, err := argString(args, 1)
			if err != nil {
				return nil, err
			}
			rec, err := c.store.Save(name, src)
			if err != nil {
				return nil, err
			}
			return rec.Digest.String(), nil
		}
		m["programs"] = func([]goja.Value) (any, error) {
			recs, err := c.store.List()
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(recs))
			for _, rec := range recs {
				names = append(names, rec.Name)
			}
			return names, nil
		}
		m["install"] = func(args []goja.Value) (any, error) {
			name, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			rec, err := c.store.Get(name)
			if err != nil {
				return nil, err
			}
			if err := c.client.LoadProgram(c.ctx, rec.Program); err != nil {
				return nil, err
			}
			return len(rec.Program.Instructions), nil
		}
	}
	m["help"] = func([]goja.Value) (any, error) {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		return "feaux." + strings.Join(names, ", feaux."), nil
	}
	return m
}

// Eval runs one line of JavaScript.
func (c *Console) Eval(src string) (goja.Value, error) {
	return c.vm.RunString(src)
}

// Run reads lines until exit, EOF or interrupt.
func (c *Console) Run(historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "feaux> ",
		HistoryFile: historyFile,
		Stdout:      c.out,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(c.out, "feauxviz console, feaux.help() lists the bindings, exit to quit")
	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		v, err := c.Eval(line)
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
			continue
		}
		if v != nil && !goja.IsUndefined(v) {
			fmt.Fprintln(c.out, v)
		}
	}
}
