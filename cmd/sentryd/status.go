package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/chainsentry/chainsentry/api"
	"github.com/chainsentry/chainsentry/types"
)

// runStatus queries a running daemon's operator endpoint and renders the
// queue health as a table.
func runStatus(cliCtx *cli.Context) error {
	port := 8080
	if cliCtx.IsSet(portFlag.Name) {
		port = cliCtx.Int(portFlag.Name)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/status", port))
	if err != nil {
		return fmt.Errorf("daemon unreachable on port %d: %w", port, err)
	}
	defer resp.Body.Close()

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("unexpected status response: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Queue", "Pending", "Processing", "Completed", "Failed"})
	table.Append([]string{
		"api requests",
		strconv.Itoa(status.Requests.Pending),
		strconv.Itoa(status.Requests.Processing),
		strconv.Itoa(status.Requests.Completed),
		strconv.Itoa(status.Requests.Failed),
	})
	table.Append([]string{
		"analysis jobs",
		strconv.Itoa(status.Jobs[types.StatusPending]),
		strconv.Itoa(status.Jobs[types.StatusProcessing]),
		strconv.Itoa(status.Jobs[types.StatusCompleted]),
		strconv.Itoa(status.Jobs[types.StatusFailed]),
	})
	table.Render()

	fmt.Printf("completed last 5 min: %d\n", status.Requests.CompletedLast5Min)
	if status.Requests.ETASeconds > 0 {
		fmt.Printf("estimated drain time: %.0fs\n", status.Requests.ETASeconds)
	}
	return nil
}
