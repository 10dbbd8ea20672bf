package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nbalance/internal/dataset"
)

func sampleResult(t *testing.T) *Result {
	t.Helper()

	obs := simObs(120, 60, 2, 8, 3)
	p, err := New(dataset.PartialBalance, fastSettings(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	res, err := p.Run(context.Background(), obs)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return res
}

func TestGenerateReport(t *testing.T) {
	t.Parallel()

	res := sampleResult(t)
	dir := t.TempDir()

	if err := NewReporter(res, dir).GenerateReport(); err != nil {
		t.Fatalf("GenerateReport returned error: %v", err)
	}

	base := filepath.Join(dir, string(dataset.PartialBalance))
	for _, name := range []string{"summary.txt", "report.json", "bootstrap_theta.csv", "posterior_samples.csv"} {
		if _, err := os.Stat(filepath.Join(base, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestGenerateReport_SummaryContent(t *testing.T) {
	t.Parallel()

	res := sampleResult(t)
	dir := t.TempDir()
	if err := NewReporter(res, dir).GenerateReport(); err != nil {
		t.Fatalf("GenerateReport returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "partial", "summary.txt"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	summary := string(data)

	for _, want := range []string{
		"partial nitrogen balance",
		"OLS FIT (n=120)",
		"Delta method:",
		"Bootstrap:",
		"Bayesian:",
		"MCMC DIAGNOSTICS",
		"Acceptance rate:",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestGenerateReport_JSONContent(t *testing.T) {
	t.Parallel()

	res := sampleResult(t)
	dir := t.TempDir()
	if err := NewReporter(res, dir).GenerateReport(); err != nil {
		t.Fatalf("GenerateReport returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "partial", "report.json"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}

	var decoded struct {
		Kind  string  `json:"kind"`
		N     int     `json:"n"`
		Theta float64 `json:"theta"`
		Delta struct {
			Theta float64 `json:"theta"`
		} `json:"delta"`
		Bootstrap struct {
			Resamples int `json:"resamples"`
		} `json:"bootstrap"`
		Bayes struct {
			Mean float64 `json:"mean"`
		} `json:"bayes"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}

	if decoded.Kind != "partial" || decoded.N != 120 {
		t.Errorf("kind/n = %q/%d", decoded.Kind, decoded.N)
	}
	if decoded.Theta != res.Theta {
		t.Errorf("theta = %g, want %g", decoded.Theta, res.Theta)
	}
	if decoded.Bootstrap.Resamples != res.Bootstrap.Resamples {
		t.Errorf("resamples = %d", decoded.Bootstrap.Resamples)
	}
	if decoded.Bayes.Mean != res.Bayes.Mean {
		t.Errorf("bayes mean = %g, want %g", decoded.Bayes.Mean, res.Bayes.Mean)
	}
}

func TestGenerateReport_DrawFiles(t *testing.T) {
	t.Parallel()

	res := sampleResult(t)
	dir := t.TempDir()
	if err := NewReporter(res, dir).GenerateReport(); err != nil {
		t.Fatalf("GenerateReport returned error: %v", err)
	}

	boot := readCSV(t, filepath.Join(dir, "partial", "bootstrap_theta.csv"))
	if len(boot) != len(res.Bootstrap.Thetas)+1 {
		t.Errorf("bootstrap rows = %d, want %d draws plus header", len(boot), len(res.Bootstrap.Thetas))
	}
	if boot[0][0] != "resample" || boot[0][1] != "theta" {
		t.Errorf("bootstrap header = %v", boot[0])
	}

	post := readCSV(t, filepath.Join(dir, "partial", "posterior_samples.csv"))
	wantDraws := 0
	for _, c := range res.Bayes.Chains {
		wantDraws += len(c)
	}
	if len(post) != wantDraws+1 {
		t.Errorf("posterior rows = %d, want %d draws plus header", len(post), wantDraws)
	}
	if len(post[0]) != 6 {
		t.Errorf("posterior header = %v", post[0])
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}
