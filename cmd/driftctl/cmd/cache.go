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

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the server's media cache",
	Long:  `Show the server's raw media cache: its bounds and every entry's key, age, and last use.`,
	RunE:  runCacheStatus,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}

type cacheEntryView struct {
	Key        string    `json:"key"`
	File       string    `json:"file"`
	LastUsed   time.Time `json:"last_used"`
	AgeSeconds float64   `json:"age_seconds"`
	FileExists bool      `json:"file_exists"`
}

type cacheStatusView struct {
	CacheSize         int              `json:"cache_size"`
	MaxCacheSize      int              `json:"max_cache_size"`
	ExpirationSeconds float64          `json:"cache_expiration_seconds"`
	Entries           []cacheEntryView `json:"entries"`
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/cache-status", GetServerURL())

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

	var result cacheStatusView
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsStructuredOutput() {
		return PrintStructured(result)
	}

	fmt.Printf("Cache: %d/%d entries, TTL %s\n\n",
		result.CacheSize, result.MaxCacheSize,
		(time.Duration(result.ExpirationSeconds) * time.Second).String())

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Key", "Age", "Last Used", "On Disk")
	for _, e := range result.Entries {
		onDisk := "yes"
		if !e.FileExists {
			onDisk = "MISSING"
		}
		table.Append(
			e.Key,
			(time.Duration(e.AgeSeconds) * time.Second).String(),
			e.LastUsed.Format("2006-01-02 15:04:05"),
			onDisk,
		)
	}
	table.Render()
	return nil
}
