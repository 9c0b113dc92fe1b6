// Command score reliability-scores a constellation snapshot offline, without
// a database. The input is a JSON array of hourly snapshots, newest first
// (index 0 is the current hour), each an array of [lat, lon, alt] rows. A
// row's index within its hour is the object id; the snapshot's index is the
// hour-offset, counted back from the current hour.
//
// Usage:
//
//	go run ./cmd/score -in data/snapshots.json -worst 20
//	go run ./cmd/score -in data/snapshots.json -config scoring.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/couchcryptid/balloon-reliability-service/internal/config"
	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "path to hourly snapshot JSON")
	cfgPath := fs.String("config", "", "optional scoring thresholds YAML")
	hours := fs.Int("hours", domain.DefaultSeriesHours, "number of hourly slots per series")
	worst := fs.Int("worst", 0, "print only the N lowest-scoring objects (0 prints all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" || *hours <= 0 {
		fs.Usage()
		return 2
	}

	th, err := config.LoadThresholds(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	obs, err := loadSnapshots(*in)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: load snapshots: %v\n", err)
		return 1
	}

	records := score(obs, *hours, th)
	if *worst > 0 {
		sort.SliceStable(records, func(i, j int) bool { return records[i].Score < records[j].Score })
		records = records[:min(*worst, len(records))]
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		fmt.Fprintf(stderr, "FATAL: encode: %v\n", err)
		return 1
	}
	return 0
}

// loadSnapshots flattens the hourly arrays into raw observations. Rows that
// are not valid triples become unparsed observations.
func loadSnapshots(path string) ([]domain.RawObservation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snapshots [][]any
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, err
	}

	var obs []domain.RawObservation
	for hour, rows := range snapshots {
		for id, row := range rows {
			o := domain.RawObservation{ObjectID: id, HourOffset: hour}
			if triple, ok := row.([]any); ok {
				if p, ok := domain.ParsePoint(triple); ok {
					o.Lat, o.Lon, o.Alt = &p.Lat, &p.Lon, p.Alt
					o.ParseOK = true
				}
			}
			obs = append(obs, o)
		}
	}
	return obs, nil
}

func score(obs []domain.RawObservation, hours int, th domain.Thresholds) []domain.ReliabilityRecord {
	series := domain.BuildSeries(obs, hours)
	records := make([]domain.ReliabilityRecord, 0, len(series))
	for _, id := range domain.ObjectIDs(series) {
		records = append(records, domain.ScoreWith(id, series[id], th))
	}
	return records
}
