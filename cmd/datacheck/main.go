// datacheck validates the replication data files before a server start.
//
// Usage:
//
//	go run ./cmd/datacheck <command> [-prefabs path] [-scenes path] [-scripts dir]
//
// Commands: prefabs, scenes, scripts, all
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/l1jgo/netsync/internal/data"
	"github.com/l1jgo/netsync/internal/scripting"
	"go.uber.org/zap"
)

type paths struct {
	prefabs string
	scenes  string
	scripts string
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: datacheck <command> [-prefabs path] [-scenes path] [-scripts dir]")
	fmt.Fprintln(os.Stderr, "Commands: prefabs, scenes, scripts, all")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	var p paths
	fs.StringVar(&p.prefabs, "prefabs", filepath.Join("data", "yaml", "prefabs.yaml"), "prefab table")
	fs.StringVar(&p.scenes, "scenes", filepath.Join("data", "yaml", "scenes.yaml"), "scene table")
	fs.StringVar(&p.scripts, "scripts", "scripts", "lua scripts directory")
	_ = fs.Parse(os.Args[2:])

	checks := map[string]func(paths) error{
		"prefabs": checkPrefabs,
		"scenes":  checkScenes,
		"scripts": checkScripts,
	}
	allOrder := []string{"prefabs", "scenes", "scripts"}

	run := allOrder
	if cmd != "all" {
		if _, ok := checks[cmd]; !ok {
			fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
			printUsage()
			os.Exit(1)
		}
		run = []string{cmd}
	}
	for _, name := range run {
		if err := checks[name](p); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR [%s]: %v\n", name, err)
			os.Exit(1)
		}
	}
	fmt.Println("OK")
}

func checkPrefabs(p paths) error {
	prefabs, err := data.LoadPrefabTable(p.prefabs)
	if err != nil {
		return err
	}
	fmt.Printf("  %d prefabs\n", prefabs.Count())
	return nil
}

func checkScenes(p paths) error {
	prefabs, err := data.LoadPrefabTable(p.prefabs)
	if err != nil {
		return err
	}
	scenes, err := data.LoadSceneTable(p.scenes)
	if err != nil {
		return err
	}
	errs := scenes.Validate(prefabs)
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  %v\n", e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d scene problems", len(errs))
	}
	fmt.Printf("  %d scenes\n", scenes.Count())
	return nil
}

func checkScripts(p paths) error {
	prefabs, err := data.LoadPrefabTable(p.prefabs)
	if err != nil {
		return err
	}
	engine, err := scripting.NewEngine(p.scripts, zap.NewNop())
	if err != nil {
		return err
	}
	defer engine.Close()

	missing := 0
	prefabs.Each(func(pf *data.Prefab) {
		for _, name := range []string{pf.SpawnCheck, pf.DespawnCheck} {
			if name != "" && !engine.HasFunction(name) {
				fmt.Fprintf(os.Stderr, "  prefab %d (%s): lua function %q not found\n", pf.ID, pf.Name, name)
				missing++
			}
		}
	})
	if missing > 0 {
		return fmt.Errorf("%d missing check functions", missing)
	}
	return nil
}
