// kessler runs the orbital debris simulation headless and reports progress.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/quillaja/kessler/internal/config"
	"github.com/quillaja/kessler/internal/engine"
	"github.com/quillaja/kessler/internal/scenario"
	"github.com/quillaja/kessler/internal/snapshot"
)

func main() {
	leo := flag.Int("leo", 20000, "number of LEO satellites")
	meo := flag.Int("meo", 500, "number of MEO satellites")
	geo := flag.Int("geo", 400, "number of GEO satellites")
	debris := flag.Int("debris", 2000, "number of pre-existing debris objects")
	seconds := flag.Float64("t", 3600, "simulated seconds to run")
	multiplier := flag.Float64("x", 0, "time multiplier (sim seconds per wall second); 0 keeps the config value")
	configFile := flag.String("config", "", "TOML configuration file")
	dumpConfig := flag.String("dumpconfig", "", "write the effective configuration to this file and exit")
	stateFilename := flag.String("state", "", "simulation snapshot to load instead of seeding")
	stateSave := flag.Bool("save", false, "set to save the final simulation snapshot")
	dbFilename := flag.String("db", "", "record snapshots to this sqlite database")
	dirname := flag.String("dir", "", "record snapshots as files in this directory")
	every := flag.Int("every", 60, "frames between recorded snapshots")
	scenarioName := flag.String("scenario", "", "scenario to trigger at start: "+strings.Join(scenario.Names(), ", "))
	collisions := flag.Int("collisions", 0, "kessler scenario: number of collisions")
	interval := flag.Float64("interval", 0, "kessler scenario: sim seconds between collisions")
	verbose := flag.Bool("v", false, "log engine events")
	flag.Parse()

	logger := log.New(os.Stderr, "kessler: ", log.Ltime)
	quiet := log.New(io.Discard, "", 0)
	if *verbose {
		quiet = logger
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			logger.Fatal(err)
		}
	}
	if *multiplier > 0 {
		cfg.Clock.TimeMultiplier = *multiplier
	}
	if *dumpConfig != "" {
		if err := config.Save(*dumpConfig, cfg); err != nil {
			logger.Fatal(err)
		}
		return
	}

	e, err := engine.New(cfg, engine.Options{Logger: quiet})
	if err != nil {
		logger.Fatal(err)
	}

	// import data if available, otherwise seed a population
	if *stateFilename != "" {
		snap, err := snapshot.ReadFile(*stateFilename)
		if err != nil {
			logger.Fatal(err)
		}
		if err := e.Restore(snap); err != nil {
			logger.Fatal(err)
		}
	} else {
		pop := scenario.Population{LEO: *leo, MEO: *meo, GEO: *geo, Debris: *debris}
		if err := e.Populate(pop); err != nil {
			logger.Fatal(err)
		}
		if err := e.ConfigureRendering(max(pop.Total(), 2), max(pop.Total()/2, 1)); err != nil {
			logger.Fatal(err)
		}
	}
	if *scenarioName != "" {
		p := scenario.Params{Collisions: *collisions, IntervalSec: *interval}
		if err := e.TriggerScenario(*scenarioName, p); err != nil {
			logger.Fatal(err)
		}
	}

	// setup snapshot output workers
	var recorders []*snapshot.Recorder
	if *dbFilename != "" {
		db, err := snapshot.Open(*dbFilename)
		if err != nil {
			logger.Fatal(err)
		}
		defer db.Close()
		// sqlite allows only 1 writer at a time
		recorders = append(recorders, snapshot.NewRecorder(db, 1, 32, logger))
	}
	if *dirname != "" {
		recorders = append(recorders, snapshot.NewRecorder(snapshot.Dir{Path: *dirname}, 2, 32, logger))
	}

	removals := countRemovals(e.Removals().Subscribe(4096))

	// print parameters
	st := e.Stats()
	sim, rendered := e.RenderConfig()
	fmt.Printf("run: %s\nbodies: %d (%d satellites, %d debris)\nrendered: %d of %d\nstep: %g sec\nmultiplier: %gx\nsimulation time: %s\n",
		st.RunID,
		st.Total, st.Satellites, st.Debris,
		rendered, sim,
		cfg.Clock.FixedStepSec,
		e.TimeMultiplier(),
		(time.Duration(*seconds) * time.Second).String())

	frameMs := cfg.Clock.MaxFrameMs
	end := st.SimTime + *seconds
	start := time.Now()
	frames := 0
	for st.SimTime < end {
		e.Step(frameMs)
		e.RenderIndices()
		st = e.Stats()
		frames++

		if *every > 0 && frames%*every == 0 {
			snap := e.Snapshot()
			for _, r := range recorders {
				if err := r.Record(snap); err != nil {
					logger.Print(err)
				}
			}
		}

		// progress
		elapsed := time.Since(start)
		done := (st.SimTime - (end - *seconds)) / *seconds
		estTimeLeft := time.Duration(0)
		if done > 0 {
			estTimeLeft = time.Duration(float64(elapsed) * (1 - done) / done)
		}
		fmt.Printf("%.1f%%, %d bodies, %d debris, %d collisions, level %d, %s remaining, %s elapsed          \r",
			100*done,
			st.Total,
			st.Debris,
			st.Collisions,
			st.Level,
			estTimeLeft.Truncate(time.Second),
			elapsed.Truncate(time.Second),
		)
	}

	for _, r := range recorders {
		if err := r.Close(); err != nil {
			logger.Print(err)
		}
	}
	removals.stop()

	fmt.Printf("\nDone. Took %s\n", time.Since(start).Truncate(time.Second))
	fmt.Printf("cascade: %s, level %d, %d collisions, %d debris generated, %d decaying below %g km\n",
		st.Phase, st.Level, st.Collisions, st.DebrisGenerated, st.Decaying, cfg.Physics.AnomalyAltitudeKm)
	if st.Terminal {
		fmt.Println("orbit unusable")
	}
	for _, line := range removals.lines() {
		fmt.Println(line)
	}

	// export final state of simulation
	if *stateSave {
		snap := e.Snapshot()
		fname := fmt.Sprintf("%010d.snap", snap.Step)
		if err := snapshot.WriteFile(fname, snap); err != nil {
			os.Remove(fname)
			logger.Fatal(err)
		}
		fmt.Printf("saved %s\n", fname)
	}
}
