// Command genevents writes a small deterministic sample dataset so the API
// can be exercised locally without downloading NOAA archives.
//
// Usage:
//
//	go run ./cmd/genevents -out data/parquet/stormevents -count 500
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/couchcryptid/storm-data-query/internal/domain"
	"github.com/couchcryptid/storm-data-query/internal/etl"
)

var eventTypes = []string{"Tornado", "Hail", "Thunderstorm Wind", "Flood", "Winter Storm"}

var states = []struct {
	name     string
	lat, lon float64
}{
	{"TEXAS", 31.0, -99.0},
	{"OKLAHOMA", 35.5, -97.5},
	{"KANSAS", 38.5, -98.0},
	{"ALABAMA", 32.7, -86.8},
	{"IOWA", 42.0, -93.5},
}

func main() {
	if err := run(); err != nil {
		slog.Error("genevents failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	out := flag.String("out", "data/parquet/stormevents", "dataset output directory")
	count := flag.Int("count", 500, "number of events to generate")
	year := flag.Int("year", 2023, "event year")
	seed := flag.Int64("seed", 1, "random seed; same seed yields the same dataset")
	flag.Parse()

	writer := etl.NewPartitionWriter(*out)
	rng := rand.New(rand.NewSource(*seed))

	for i := 0; i < *count; i++ {
		ev := randomEvent(rng, *year, i)
		if err := writer.Write(ev); err != nil {
			writer.Close()
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	slog.Info("sample dataset written", "out", *out, "rows", writer.Rows())
	return nil
}

func randomEvent(rng *rand.Rand, year, i int) domain.StormEvent {
	st := states[rng.Intn(len(states))]
	eventType := eventTypes[rng.Intn(len(eventTypes))]

	begin := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(rng.Intn(365*24)) * time.Hour)

	ev := domain.StormEvent{
		EventID:        fmt.Sprintf("%d%05d", year, i),
		State:          st.name,
		EventType:      eventType,
		EpisodeID:      fmt.Sprintf("ep-%04d", i/10),
		CZName:         fmt.Sprintf("%s ZONE %d", st.name, rng.Intn(50)),
		BeginDateTime:  begin,
		EndDateTime:    begin.Add(time.Duration(rng.Intn(180)) * time.Minute),
		DamageProperty: fmt.Sprintf("%d.00K", rng.Intn(500)),
		Year:           begin.Year(),
		EventTypePart:  domain.PartitionKey(eventType),
	}

	// Roughly one event in ten has no measurements, like the real data.
	if rng.Intn(10) > 0 {
		mag := float64(rng.Intn(100)) / 10
		lat := st.lat + rng.Float64()*2 - 1
		lon := st.lon + rng.Float64()*2 - 1
		ev.Magnitude = &mag
		ev.Latitude = &lat
		ev.Longitude = &lon
	}
	return ev
}
