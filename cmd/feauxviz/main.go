// feauxviz assembles programs for the feaux-s scheduling engine, inspects
// its snapshots and serves them to a browser as a live feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/feauxviz/asm"
	"github.com/colorfulnotion/feauxviz/console"
	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/feed"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/program"
	"github.com/colorfulnotion/feauxviz/recorder"
	"github.com/colorfulnotion/feauxviz/report"
	"github.com/colorfulnotion/feauxviz/snapshot"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "feauxviz",
		Short: "Assembler, snapshot decoder and live viewer for the feaux-s engine",
		Long: `feauxviz compiles feaux-s assembly, drives the scheduling engine through
its exported entry points and decodes the machine and OS snapshots it returns.`,
		Version:       fmt.Sprintf("%s (%s, %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var g globalFlags
	g.register(rootCmd)

	rootCmd.AddCommand(
		asmCmd(&g),
		disasmCmd(&g),
		snapshotCmd(&g),
		serveCmd(&g),
		consoleCmd(&g),
		programsCmd(&g),
		diffCmd(&g),
		reportCmd(&g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "feauxviz: %v\n", err)
		if code := feauxerrors.GetErrorCode(err); code != "" {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", code, feauxerrors.GetErrorDesc(err))
		}
		os.Exit(1)
	}
}

func asmCmd(g *globalFlags) *cobra.Command {
	var out string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "asm <source>",
		Short: "Assemble a source file and print or write the instruction list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := g.load(cmd); err != nil {
				return err
			}
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			p, err := asm.CompileProgram(name, string(src))
			if err != nil {
				return err
			}
			if out != "" {
				data, err := p.MarshalBinary()
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("%s: %d instructions -> %s\n", p.Name, len(p.Instructions), out)
				return nil
			}
			if asJSON {
				return printJSON(p)
			}
			for i, ins := range p.Instructions {
				fmt.Printf("%4d  %s\n", i, ins)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the compiled program in wire format")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func disasmCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <program.bin>",
		Short: "Turn a compiled program back into source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := g.load(cmd); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var p program.Program
			if err := p.UnmarshalBinary(data); err != nil {
				return err
			}
			src, err := asm.Disassemble(p.Instructions)
			if err != nil {
				return err
			}
			fmt.Printf("; %s\n%s", p.Name, src)
			return nil
		},
	}
}

func snapshotCmd(g *globalFlags) *cobra.Command {
	var spawn []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Spawn programs, take one machine and OS snapshot and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx, cfg)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			for _, name := range spawn {
				pid, err := e.client.Spawn(ctx, name)
				if err != nil {
					return err
				}
				log.Info(log.EngineMonitoring, "spawned", "name", name, "pid", pid)
			}
			f, err := e.client.Snapshot(ctx, 0)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(f)
			}
			fmt.Print(f.Tree())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&spawn, "spawn", nil, "Programs to spawn before the snapshot")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func serveCmd(g *globalFlags) *cobra.Command {
	var listen string
	var interval time.Duration
	var record bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the engine and stream snapshots to browsers over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Feed.Listen = listen
			}
			if cmd.Flags().Changed("interval") {
				cfg.Feed.PollInterval = interval
			}
			if cmd.Flags().Changed("record") {
				cfg.Feed.Record = record
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			e, err := openEnv(ctx, cfg)
			if err != nil {
				return err
			}
			defer e.Close(context.Background())

			var sinks []feed.FrameSink
			if cfg.Feed.Record {
				rec := recorder.New(e.ps, recorder.DefaultCompression)
				n, err := rec.Clear()
				if err != nil {
					return err
				}
				log.Info(log.StoreMonitoring, "recording", "cleared", n)
				sinks = append(sinks, rec)
			}
			hub := feed.NewHub()
			go hub.Run(ctx)
			poller := feed.NewPoller(e.client, hub, cfg.Feed.PollInterval, sinks...)

			srv := &http.Server{Addr: cfg.Feed.Listen, Handler: feed.NewServeMux(hub, nil)}
			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				srv.Shutdown(shutdown)
			}()
			go func() {
				if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error(log.FeedMonitoring, "poller stopped", "err", err)
				}
			}()

			log.Info(log.FeedMonitoring, "serving", "addr", "http://"+cfg.Feed.Listen, "interval", cfg.Feed.PollInterval, "record", cfg.Feed.Record)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Snapshot poll interval")
	cmd.Flags().BoolVar(&record, "record", false, "Record every frame into the database")
	return cmd
}

func consoleCmd(g *globalFlags) *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "JavaScript console bound to the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx, cfg)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			c, err := console.New(ctx, e.client, e.store, os.Stdout)
			if err != nil {
				return err
			}
			return c.Run(history)
		},
	}
	cmd.Flags().StringVar(&history, "history", filepath.Join(os.TempDir(), "feauxviz_console_history.txt"), "Console history file")
	return cmd
}

func programsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "programs",
		Short: "Manage the stored program library",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored programs",
			RunE: withStore(g, func(e *env, args []string) error {
				recs, err := e.store.List()
				if err != nil {
					return err
				}
				for _, rec := range recs {
					fmt.Printf("%-20s %4d  %s  %s\n", rec.Name, len(rec.Program.Instructions), rec.Digest.String()[:16], rec.SavedAt.Format(time.RFC3339))
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add <name> <source>",
			Short: "Compile a source file and store it under name",
			Args:  cobra.ExactArgs(2),
			RunE: withStore(g, func(e *env, args []string) error {
				src, err := os.ReadFile(args[1])
				if err != nil {
					return err
				}
				rec, err := e.store.Save(args[0], string(src))
				if err != nil {
					return err
				}
				fmt.Printf("%s %s\n", rec.Name, rec.Digest)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "import <dir>",
			Short: "Compile and store every source file in dir",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(g, func(e *env, args []string) error {
				names, err := e.store.ImportDir(args[0])
				if err != nil {
					return err
				}
				fmt.Println(strings.Join(names, "\n"))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Print a stored program's source",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(g, func(e *env, args []string) error {
				rec, err := e.store.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Print(rec.Source)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "rm <name>",
			Short: "Delete a stored program",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(g, func(e *env, args []string) error {
				return e.store.Delete(args[0])
			}),
		},
	)
	return cmd
}

func withStore(g *globalFlags, fn func(e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := g.load(cmd)
		if err != nil {
			return err
		}
		e, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer e.Close(cmd.Context())
		return fn(e, args)
	}
}

func diffCmd(g *globalFlags) *cobra.Command {
	var color bool
	cmd := &cobra.Command{
		Use:   "diff <tick> <tick>",
		Short: "Show what changed between two recorded frames",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(g, func(e *env, args []string) error {
			rec := recorder.New(e.ps, recorder.DefaultCompression)
			var frames [2]*snapshot.Frame
			for i, arg := range args {
				tick, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("tick %q: %w", arg, err)
				}
				if frames[i], err = rec.Frame(tick); err != nil {
					return err
				}
			}
			d, err := snapshot.Diff(frames[0], frames[1], color)
			if err != nil {
				return err
			}
			if d == "" {
				fmt.Println("no changes")
				return nil
			}
			fmt.Print(d)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&color, "color", true, "Color the diff")
	return cmd
}

func reportCmd(g *globalFlags) *cobra.Command {
	var from, to uint64
	var out, title string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render recorded frames as an HTML chart page",
		RunE: withStore(g, func(e *env, args []string) error {
			rep := report.New(title)
			if err := recorder.New(e.ps, recorder.DefaultCompression).Replay(from, to, rep.Add); err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := rep.Render(f); err != nil {
				f.Close()
				return err
			}
			fmt.Printf("%d frames -> %s\n", len(rep.Samples()), out)
			return f.Close()
		}),
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "First tick")
	cmd.Flags().Uint64Var(&to, "to", ^uint64(0), "Last tick")
	cmd.Flags().StringVarP(&out, "out", "o", "feauxviz-report.html", "Output file")
	cmd.Flags().StringVar(&title, "title", "feauxviz run", "Report title")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
