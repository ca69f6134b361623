package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"hivesim.ai/internal/sim/hive"
	"hivesim.ai/internal/sim/swarm"
)

func main() {
	var (
		dir      = flag.String("transitions", "", "dir containing transitions-*.jsonl.zst")
		fromTick = flag.Uint64("from_tick", 0, "start at tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		verbose  = flag.Bool("v", false, "print every transition")
	)
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "missing -transitions")
		os.Exit(2)
	}

	files, err := listTransitionFiles(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list transitions:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no transition files found in", *dir)
		os.Exit(1)
	}

	var (
		ticks       uint64
		transitions uint64
		strengthSum float64
		byEmotion   [swarm.NumEmotions]uint64
	)
	for _, path := range files {
		done, err := replayFile(path, *fromTick, *toTick, *verbose, &ticks, &transitions, &strengthSum, &byEmotion)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if done {
			break
		}
	}

	fmt.Printf("replay ok: ticks=%d transitions=%d\n", ticks, transitions)
	if transitions > 0 {
		fmt.Printf("avg strength: %.4f\n", strengthSum/float64(transitions))
	}
	for e := 0; e < swarm.NumEmotions; e++ {
		if byEmotion[e] == 0 {
			continue
		}
		fmt.Printf("  %-12s %d\n", swarm.Emotion(e), byEmotion[e])
	}
}

func listTransitionFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "transitions-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func replayFile(path string, fromTick, toTick uint64, verbose bool, ticks, transitions *uint64, strengthSum *float64, byEmotion *[swarm.NumEmotions]uint64) (done bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return false, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		var entry hive.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return false, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Tick < fromTick {
			continue
		}
		if toTick != 0 && entry.Tick > toTick {
			return true, nil
		}

		*ticks++
		for _, tr := range entry.Transitions {
			*transitions++
			*strengthSum += tr.Strength
			if int(tr.TargetEmotion) < len(byEmotion) {
				byEmotion[tr.TargetEmotion]++
			}
			if verbose {
				fmt.Printf("tick=%d %s -> %s strength=%.3f speed=%.3f\n",
					entry.Tick, tr.TargetID, tr.TargetEmotion, tr.Strength, tr.TransitionSpeed)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return false, err
	}
	return false, nil
}
