package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/finance-garden/admission/pkg/health"
)

var (
	serverURL string
	Version   = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "admitctl",
		Short: "admitctl - Finance Garden admission gateway control",
		Long:  "Inspect and exercise the admission gateway from the command line",
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Gateway URL")

	rootCmd.AddCommand(
		healthCmd(),
		statsCmd(),
		probeCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := health.Check(serverURL)
			if status.Healthy {
				fmt.Println("Gateway is healthy")
				return nil
			}
			for _, issue := range status.Issues {
				fmt.Printf("  - %s\n", issue)
			}
			return fmt.Errorf("gateway is unhealthy")
		},
	}
}

func statsCmd() *cobra.Command {
	var adminToken string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show admission outcome counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, serverURL+"/v1/admission/stats", nil)
			if err != nil {
				return err
			}
			if adminToken != "" {
				req.Header.Set("Authorization", "Bearer "+adminToken)
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("stats request failed: %d: %s", resp.StatusCode, body)
			}

			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				return err
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&adminToken, "token", "t", "", "Admin token")
	return cmd
}

func probeCmd() *cobra.Command {
	var (
		count int
		path  string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Fire requests at the gateway and report throttling",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 10 * time.Second}

			var admitted, throttled, failed int
			for i := 0; i < count; i++ {
				resp, err := client.Get(serverURL + path)
				if err != nil {
					failed++
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				switch {
				case resp.StatusCode == http.StatusTooManyRequests:
					throttled++
				default:
					admitted++
				}
			}

			fmt.Printf("Probe Results\n")
			fmt.Printf("=============\n\n")
			fmt.Printf("Requests:   %d\n", count)
			fmt.Printf("Admitted:   %d\n", admitted)
			fmt.Printf("Throttled:  %d\n", throttled)
			if failed > 0 {
				fmt.Printf("Failed:     %d\n", failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of requests to send")
	cmd.Flags().StringVarP(&path, "path", "p", "/", "Path to request")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("admitctl %s\n", Version)
		},
	}
}
