package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List all jobs",
	Long:  `List every job known to the server with its status and progress.`,
	RunE:  runJobsList,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Get job status",
	Long:  `Retrieve the status, progress, and result location of a specific job.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
}

type jobView struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	ResultFile  string     `json:"result_file,omitempty"`
	Error       string     `json:"error,omitempty"`
	UsedCache   bool       `json:"used_cache"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Request     struct {
		SourceURL string `json:"youtube_url"`
	} `json:"request"`
}

type jobsListView struct {
	Jobs  []jobView `json:"jobs"`
	Count int       `json:"count"`
}

func fetchJob(jobID string) (*jobView, error) {
	url := fmt.Sprintf("%s/status/%s", GetServerURL(), jobID)

	resp, err := GetHTTPClient().Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to driftd API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result jobView
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	job, err := fetchJob(args[0])
	if err != nil {
		return err
	}

	if IsStructuredOutput() {
		return PrintStructured(job)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Job ID", job.JobID)
	table.Append("Source", job.Request.SourceURL)
	table.Append("Status", job.Status)
	table.Append("Progress", fmt.Sprintf("%.0f%%", job.Progress*100))
	table.Append("Used Cache", fmt.Sprintf("%v", job.UsedCache))
	table.Append("Created At", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		table.Append("Started At", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		table.Append("Completed At", job.CompletedAt.Format(time.RFC3339))
	}
	if job.ResultFile != "" {
		table.Append("Result", job.ResultFile)
	}
	if job.Error != "" {
		table.Append("Error", job.Error)
	}
	table.Render()
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/jobs", GetServerURL())

	resp, err := GetHTTPClient().Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to driftd API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result jobsListView
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsStructuredOutput() {
		return PrintStructured(result)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "Status", "Progress", "Cache", "Created", "Error")

	for _, job := range result.Jobs {
		cache := "-"
		if job.UsedCache {
			cache = "hit"
		}
		errDisplay := "-"
		if job.Error != "" {
			errDisplay = job.Error
		}
		table.Append(
			job.JobID,
			job.Status,
			fmt.Sprintf("%.0f%%", job.Progress*100),
			cache,
			job.CreatedAt.Format("2006-01-02 15:04"),
			errDisplay,
		)
	}

	table.Render()
	fmt.Printf("\nTotal jobs: %d\n", result.Count)
	return nil
}
