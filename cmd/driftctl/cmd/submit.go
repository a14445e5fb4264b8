package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	// submit flags
	videoURL   string
	audioSpeed float64
	roomSize   float64
	damping    float64
	wetLevel   float64
	dryLevel   float64
	startTime  string
	endTime    string
	loopVideo  bool
	asPreview  bool
	followJob  bool
)

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit <youtube-url>",
	Short: "Submit a processing job",
	Long:  `Submit a slowed+reverb processing job for the given source URL. Effect parameters default to the classic slowed+reverb sound when omitted.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&videoURL, "video-url", "", "separate video source for loop mode")
	submitCmd.Flags().Float64Var(&audioSpeed, "speed", 0.8, "playback speed multiplier (below 1 slows down)")
	submitCmd.Flags().Float64Var(&roomSize, "room-size", 0.75, "reverb room size [0,1]")
	submitCmd.Flags().Float64Var(&damping, "damping", 0.5, "reverb damping [0,1]")
	submitCmd.Flags().Float64Var(&wetLevel, "wet", 0.08, "reverb wet level [0,1]")
	submitCmd.Flags().Float64Var(&dryLevel, "dry", 0.2, "dry signal level [0,1]")
	submitCmd.Flags().StringVar(&startTime, "start", "", "trim start (MM:SS)")
	submitCmd.Flags().StringVar(&endTime, "end", "", "trim end (MM:SS)")
	submitCmd.Flags().BoolVar(&loopVideo, "loop-video", false, "produce a video looped over the trim window")
	submitCmd.Flags().BoolVar(&asPreview, "preview", false, "render only a short fixed preview window")
	submitCmd.Flags().BoolVar(&followJob, "follow", false, "poll job status every 2 seconds until completion")
}

type submitRequest struct {
	SourceURL  string   `json:"youtube_url"`
	VideoURL   string   `json:"video_url,omitempty"`
	AudioSpeed *float64 `json:"audio_speed,omitempty"`
	RoomSize   *float64 `json:"room_size,omitempty"`
	Damping    *float64 `json:"damping,omitempty"`
	WetLevel   *float64 `json:"wet_level,omitempty"`
	DryLevel   *float64 `json:"dry_level,omitempty"`
	StartTime  string   `json:"start_time,omitempty"`
	EndTime    string   `json:"end_time,omitempty"`
	LoopVideo  bool     `json:"loop_video,omitempty"`
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	endpoint := "/process"
	if asPreview {
		endpoint = "/preview"
	}
	url := fmt.Sprintf("%s%s", GetServerURL(), endpoint)

	req := submitRequest{
		SourceURL: args[0],
		VideoURL:  videoURL,
		StartTime: startTime,
		EndTime:   endTime,
		LoopVideo: loopVideo,
	}
	// Only send flags the user actually set, so server defaults stay in
	// charge of everything else.
	if cmd.Flags().Changed("speed") {
		req.AudioSpeed = &audioSpeed
	}
	if cmd.Flags().Changed("room-size") {
		req.RoomSize = &roomSize
	}
	if cmd.Flags().Changed("damping") {
		req.Damping = &damping
	}
	if cmd.Flags().Changed("wet") {
		req.WetLevel = &wetLevel
	}
	if cmd.Flags().Changed("dry") {
		req.DryLevel = &dryLevel
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := GetHTTPClient().Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to connect to driftd API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result submitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsStructuredOutput() {
		if err := PrintStructured(result); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Value")
		table.Append("Job ID", result.JobID)
		table.Append("Status", result.Status)
		table.Render()
		fmt.Printf("\nJob submitted: %s\n", result.JobID)
	}

	if followJob {
		return followStatus(result.JobID)
	}
	return nil
}

func followStatus(jobID string) error {
	fmt.Printf("Following job %s (press Ctrl+C to stop)...\n\n", jobID)
	for {
		job, err := fetchJob(jobID)
		if err != nil {
			return err
		}
		fmt.Printf("%s  progress %3.0f%%\n", job.Status, job.Progress*100)
		if job.Status == "completed" || job.Status == "failed" {
			if job.Error != "" {
				fmt.Printf("Error: %s\n", job.Error)
			}
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}
