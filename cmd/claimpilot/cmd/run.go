package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/report"
)

var runFlags struct {
	estimatePath string
	photoPaths   []string
	carrier      string
	claimNumber  string
	insuredName  string
	address      string
	materials    float64
	labor        float64
	other        float64
	margin       float64
	noReport     bool
	outDir       string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one claim job from local files",
	Long: `Runs a single claim through the pipeline without the API server.
The result is printed as JSON; report artifacts are written under --out.`,
	RunE: runJob,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.estimatePath, "estimate", "", "path to the carrier estimate PDF")
	runCmd.Flags().StringSliceVar(&runFlags.photoPaths, "photo", nil, "claim photo path (repeatable)")
	runCmd.Flags().StringVar(&runFlags.carrier, "carrier", "", "insurance carrier name")
	runCmd.Flags().StringVar(&runFlags.claimNumber, "claim-number", "", "carrier claim number")
	runCmd.Flags().StringVar(&runFlags.insuredName, "insured", "", "insured name")
	runCmd.Flags().StringVar(&runFlags.address, "address", "", "property address")
	runCmd.Flags().Float64Var(&runFlags.materials, "materials-cost", 0, "actual materials cost")
	runCmd.Flags().Float64Var(&runFlags.labor, "labor-cost", 0, "actual labor cost")
	runCmd.Flags().Float64Var(&runFlags.other, "other-costs", 0, "other actual costs")
	runCmd.Flags().Float64Var(&runFlags.margin, "margin", 0, "minimum margin target as a decimal (default 0.33)")
	runCmd.Flags().BoolVar(&runFlags.noReport, "no-report", false, "skip report generation")
	runCmd.Flags().StringVar(&runFlags.outDir, "out", "reports", "directory for report artifacts")
	_ = runCmd.MarkFlagRequired("carrier")
	_ = runCmd.MarkFlagRequired("claim-number")
	_ = runCmd.MarkFlagRequired("photo")

	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := buildLogger(cfg)

	pipe, err := buildPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer pipe.Close()

	job, err := jobFromFlags()
	if err != nil {
		return err
	}

	result := pipe.orch.Run(cmd.Context(), job)

	if result.ReportHTML != "" {
		writer := report.NewWriter(runFlags.outDir, log)
		arts, err := writer.Write(job.ID, result.ReportHTML, result.ReportPDF)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", arts.HTMLPath)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.Status == core.StatusFailed {
		return fmt.Errorf("job failed: %s", result.EscalationReason)
	}
	return nil
}

func jobFromFlags() (*core.Job, error) {
	job := &core.Job{
		ID: uuid.NewString(),
		Metadata: core.ClaimMetadata{
			Carrier:         runFlags.carrier,
			ClaimNumber:     runFlags.claimNumber,
			InsuredName:     runFlags.insuredName,
			PropertyAddress: runFlags.address,
		},
		Costs: core.Costs{
			Materials: runFlags.materials,
			Labor:     runFlags.labor,
			Other:     runFlags.other,
			Currency:  "USD",
		},
		Targets:        core.BusinessTargets{MinimumMargin: runFlags.margin},
		GenerateReport: !runFlags.noReport,
	}

	if runFlags.estimatePath != "" {
		data, err := os.ReadFile(runFlags.estimatePath)
		if err != nil {
			return nil, fmt.Errorf("reading estimate: %w", err)
		}
		job.EstimatePDF = data
	}

	for i, path := range runFlags.photoPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading photo %s: %w", path, err)
		}
		job.Photos = append(job.Photos, core.Photo{
			ID:       fmt.Sprintf("photo-%d", i+1),
			Data:     data,
			Filename: filepath.Base(path),
			MIMEType: http.DetectContentType(data),
			View:     core.ViewUnknown,
		})
	}
	return job, nil
}
