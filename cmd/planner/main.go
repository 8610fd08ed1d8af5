package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/arnavshah/mass-scheduler-go/pkg/config"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/arnavshah/mass-scheduler-go/pkg/planner"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func main() {
	_ = godotenv.Load(".env")

	input := flag.String("input", "plan.yaml", "YAML plan request")
	strategy := flag.String("strategy", "", "heuristic or solver (overrides the file)")
	trials := flag.Int("trials", 0, "number of heuristic trials (overrides the file)")
	seed := flag.Int64("seed", 0, "random seed (overrides the file)")
	asJSON := flag.Bool("json", false, "print the plan as JSON")
	flag.Parse()

	log := logger.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Configure(cfg.LogLevel, false); err != nil {
		log.Fatalf("Invalid LOG_LEVEL %q: %v", cfg.LogLevel, err)
	}

	req, err := readRequest(*input)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *strategy != "" {
		req.Strategy = *strategy
	}
	if *trials > 0 {
		req.Trials = *trials
	}
	if *seed != 0 {
		req.Seed = *seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resp, err := planner.NewService(cfg, nil, nil, log).Plan(ctx, req)
	if err != nil {
		log.Fatalf("Planning failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}
	if err := printPlan(os.Stdout, resp); err != nil {
		log.Fatalf("%v", err)
	}
}

func readRequest(path string) (*models.PlanRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var req models.PlanRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &req, nil
}

func printPlan(out io.Writer, resp *models.PlanResponse) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "DATE\tTIME\tMASS\tLOCATION\tSERVERS\n")
	for _, mass := range resp.Calendar {
		name := mass.SlotID
		if mass.Comment != "" {
			name = mass.Comment
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mass.Date, mass.Time, name, mass.Location, strings.Join(mass.Servers, ", "))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "SERVER\tMASSES\n")
	for _, d := range resp.Distribution {
		fmt.Fprintf(w, "%s\t%d\n", d.Name, d.Count)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "strategy %s, %d trials, score %.4f (load %.4f, gaps %.4f, slots %.4f)\n",
		resp.Strategy, resp.Trials, resp.Fitness.Score,
		resp.Fitness.LoadVariance, resp.Fitness.GapVariance, resp.Fitness.SlotVariance)
	return w.Flush()
}
