package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Reporter writes one pipeline result to disk: a human-readable summary, a
// JSON report, and the raw bootstrap and posterior draws needed for
// histograms and trace plots.
type Reporter struct {
	result     *Result
	outputPath string
}

// NewReporter creates a reporter writing under outputPath/<balance kind>.
func NewReporter(result *Result, outputPath string) *Reporter {
	return &Reporter{
		result:     result,
		outputPath: filepath.Join(outputPath, string(result.Kind)),
	}
}

// GenerateReport writes all report files.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	if err := r.generateBootstrapCSV(); err != nil {
		return err
	}
	return r.generatePosteriorCSV()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	res := r.result

	fmt.Fprintf(file, "BREAK-EVEN NDFA ANALYSIS (%s nitrogen balance)\n", res.Kind)
	fmt.Fprintf(file, "==============================================\n\n")

	fmt.Fprintf(file, "OLS FIT (n=%d)\n", res.N)
	fmt.Fprintf(file, "--------------\n")
	se0, se1 := res.Fit.StdErr()
	fmt.Fprintf(file, "Intercept: %.4f (SE %.4f)\n", res.Fit.Beta0, se0)
	fmt.Fprintf(file, "Slope:     %.4f (SE %.4f)\n", res.Fit.Beta1, se1)
	fmt.Fprintf(file, "Residual variance: %.4f\n\n", res.Fit.Sigma2)

	fmt.Fprintf(file, "BREAK-EVEN NDFA ESTIMATES (%% Ndfa at zero balance)\n")
	fmt.Fprintf(file, "--------------------------------------------------\n")
	fmt.Fprintf(file, "Delta method:  %.2f  [%.2f, %.2f]  (SE %.2f, alpha %.2f)\n",
		res.Delta.Theta, res.Delta.Interval.Lower, res.Delta.Interval.Upper,
		res.Delta.SE, res.Delta.Alpha)
	fmt.Fprintf(file, "Bootstrap:     %.2f  [%.2f, %.2f]  (%d resamples, seed %d)\n",
		res.Bootstrap.Median, res.Bootstrap.Lower, res.Bootstrap.Upper,
		res.Bootstrap.Resamples, res.Bootstrap.Seed)
	fmt.Fprintf(file, "Bayesian:      %.2f  [%.2f, %.2f]  (posterior mean %.2f)\n\n",
		res.Bayes.Median, res.Bayes.Interval.Lower, res.Bayes.Interval.Upper,
		res.Bayes.Mean)

	fmt.Fprintf(file, "MCMC DIAGNOSTICS\n")
	fmt.Fprintf(file, "----------------\n")
	d := res.Bayes.Diag
	fmt.Fprintf(file, "Split R-hat: theta %.4f, beta1 %.4f, sigma %.4f\n", d.RHatTheta, d.RHatBeta1, d.RHatSigma)
	fmt.Fprintf(file, "ESS:         theta %.0f, beta1 %.0f, sigma %.0f\n", d.ESSTheta, d.ESSBeta1, d.ESSSigma)
	fmt.Fprintf(file, "Acceptance rate: %.3f\n", d.Acceptance)
	if d.Converged() {
		fmt.Fprintf(file, "Convergence: OK\n")
	} else {
		fmt.Fprintf(file, "Convergence: WARNINGS\n")
		for _, w := range d.Warnings {
			fmt.Fprintf(file, "  - %s\n", w)
		}
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "report.json")
	file, err := os.Create(jsonPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON report: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.result); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

func (r *Reporter) generateBootstrapCSV() error {
	csvPath := filepath.Join(r.outputPath, "bootstrap_theta.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"resample", "theta"}); err != nil {
		return err
	}
	for i, theta := range r.result.Bootstrap.Thetas {
		record := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(theta, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", csvPath).Msg("Bootstrap draws written")
	return nil
}

// generatePosteriorCSV writes per-chain draws in iteration order, the input
// a trace plot needs.
func (r *Reporter) generatePosteriorCSV() error {
	csvPath := filepath.Join(r.outputPath, "posterior_samples.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create posterior CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"chain", "draw", "theta", "beta1", "sigma", "beta0"}); err != nil {
		return err
	}
	for c, chain := range r.result.Bayes.Chains {
		for i, s := range chain {
			record := []string{
				strconv.Itoa(c),
				strconv.Itoa(i),
				strconv.FormatFloat(s.Theta, 'g', -1, 64),
				strconv.FormatFloat(s.Beta1, 'g', -1, 64),
				strconv.FormatFloat(s.Sigma, 'g', -1, 64),
				strconv.FormatFloat(s.Beta0, 'g', -1, 64),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	log.Info().Str("file", csvPath).Msg("Posterior draws written")
	return nil
}
