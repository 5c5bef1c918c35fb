// Command chronicled is a small, non-networked smoke test for the
// storage engine and the query executor: it opens an engine in a
// temporary data directory, registers a metric, writes some samples,
// flushes, runs one query, and prints the engine stats. It is not a server — the
// HTTP/REST façade, if one is ever built, is a separate process.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/muddysheep/chronicle/chrntypes"
	"github.com/muddysheep/chronicle/engine"
	"github.com/muddysheep/chronicle/internal/chlog"
	"github.com/muddysheep/chronicle/query"
)

func main() {
	dataDir, err := os.MkdirTemp("", "chronicled-demo-*")
	if err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	defer os.RemoveAll(dataDir)

	logger, err := chlog.New("info")
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer logger.Sync()

	e, err := engine.Open(engine.DefaultConfig(dataDir), logger)
	if err != nil {
		log.Fatalf("open engine: %v", err)
	}
	defer e.Shutdown()

	minVal, maxVal := 1.0, 10.0
	metricID, err := e.RegisterMetric(chrntypes.Metric{
		Name:        "mood",
		Unit:        "1-10",
		Category:    chrntypes.CategoryMood,
		Aggregation: chrntypes.AggAvg,
		MinValue:    &minVal,
		MaxValue:    &maxVal,
	})
	if err != nil {
		log.Fatalf("register metric: %v", err)
	}

	now := time.Now().UnixMilli()
	for i := int64(0); i < 10; i++ {
		err := e.Write(chrntypes.Sample{
			Timestamp: now - (10-i)*1000,
			MetricID:  metricID,
			Value:     5.0 + float64(i)*0.5,
			Tags:      map[string]string{"source": "demo"},
		})
		if err != nil {
			log.Fatalf("write sample: %v", err)
		}
	}
	if err := e.Flush(); err != nil {
		log.Fatalf("flush: %v", err)
	}

	executor := query.NewExecutor(e)
	result, err := executor.QueryLastDays("mood", 1)
	if err != nil {
		log.Fatalf("query: %v", err)
	}

	fmt.Printf("queried %d row(s), %d point(s) scanned, %dms\n", result.Len(), result.PointsScanned, result.ExecutionTimeMS)
	for _, row := range result.Rows {
		v, _ := row.Get("mood")
		fmt.Printf("  t=%d mood=%.2f\n", row.Timestamp, v)
	}

	stats, err := e.Stats()
	if err != nil {
		log.Fatalf("stats: %v", err)
	}
	fmt.Printf("engine stats: %+v\n", stats)
}
