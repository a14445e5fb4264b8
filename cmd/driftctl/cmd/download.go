package cmd

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var downloadOutput string

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download a finished result",
	Long:  `Download the finished artifact of a completed job to the local filesystem.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "destination path (default: server-provided filename)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	url := fmt.Sprintf("%s/download/%s", GetServerURL(), jobID)

	resp, err := GetHTTPClient().Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to driftd API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dest := downloadOutput
	if dest == "" {
		dest = filenameFromResponse(resp, jobID)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}

	fmt.Printf("✓ Saved %s (%d bytes)\n", dest, n)
	return nil
}

func filenameFromResponse(resp *http.Response, jobID string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "" && name != "." {
				return name
			}
		}
	}
	// Fall back to the job ID with an extension matching the content type.
	ext := ".mp3"
	if resp.Header.Get("Content-Type") == "video/mp4" {
		ext = ".mp4"
	}
	return jobID + ext
}
