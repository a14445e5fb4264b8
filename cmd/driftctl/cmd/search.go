package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var searchLimit int

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the upstream catalog",
	Long:  `Search the upstream catalog for sources to process.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
}

type searchResultView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Channel  string `json:"channel"`
	URL      string `json:"url"`
}

type searchResponseView struct {
	Results []searchResultView `json:"results"`
	Count   int                `json:"count"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	for i, a := range args {
		if i > 0 {
			query += " "
		}
		query += a
	}

	endpoint := fmt.Sprintf("%s/search?query=%s&limit=%d",
		GetServerURL(), url.QueryEscape(query), searchLimit)

	resp, err := GetHTTPClient().Get(endpoint)
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

	var result searchResponseView
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsStructuredOutput() {
		return PrintStructured(result)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Title", "Channel", "Duration", "URL")
	for _, r := range result.Results {
		table.Append(r.Title, r.Channel, r.Duration, r.URL)
	}
	table.Render()
	fmt.Printf("\n%d results\n", result.Count)
	return nil
}
