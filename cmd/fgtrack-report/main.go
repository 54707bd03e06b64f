// fgtrack-report renders the HTML report and trajectory figure for a
// recorded run.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/fgtrack.report/internal/report"
	"github.com/banshee-data/fgtrack.report/internal/storage/sqlite"
	"github.com/banshee-data/fgtrack.report/internal/version"
)

func main() {
	var dbPath string
	var runID string
	var outDir string
	var list bool
	var showVersion bool

	flag.StringVar(&dbPath, "db", "fgtrack.db", "path to run database")
	flag.StringVar(&runID, "run", "", "run id (defaults to the most recent run)")
	flag.StringVar(&outDir, "out", ".", "output directory for report files")
	flag.BoolVar(&list, "list", false, "list recorded runs and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		log.Fatalf("open run database: %v", err)
	}
	defer db.Close()

	runs, err := db.Runs()
	if err != nil {
		log.Fatalf("list runs: %v", err)
	}
	if len(runs) == 0 {
		log.Fatalf("no runs recorded in %s", dbPath)
	}

	if list {
		for _, r := range runs {
			finished := "running"
			if !r.FinishedAt.IsZero() {
				finished = r.FinishedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  started=%s  finished=%s  steps=%d\n",
				r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), finished, r.Steps)
		}
		return
	}

	run := runs[0]
	if runID != "" {
		found := false
		for _, r := range runs {
			if r.ID == runID {
				run, found = r, true
				break
			}
		}
		if !found {
			log.Fatalf("run %s not found in %s", runID, dbPath)
		}
	}

	data := report.Data{Run: run}
	if data.Trajectory, err = db.Trajectory(run.ID); err != nil {
		log.Fatalf("load trajectory: %v", err)
	}
	if data.Objects, err = db.ObjectSeries(run.ID); err != nil {
		log.Fatalf("load object series: %v", err)
	}
	if data.Steps, err = db.StepRecords(run.ID); err != nil {
		log.Fatalf("load step records: %v", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}
	htmlPath := filepath.Join(outDir, fmt.Sprintf("run-%s.html", run.ID))
	pngPath := filepath.Join(outDir, fmt.Sprintf("run-%s.png", run.ID))

	if err := report.WriteHTMLFile(htmlPath, data); err != nil {
		log.Fatalf("write report: %v", err)
	}
	if err := report.SaveTrajectoryPNG(pngPath, data); err != nil {
		log.Fatalf("write figure: %v", err)
	}
	fmt.Printf("wrote %s and %s\n", htmlPath, pngPath)
}
