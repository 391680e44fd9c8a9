package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	vegeta "github.com/tsenart/vegeta/lib"
)

// BenchConfig drives one sendMessage load run.
type BenchConfig struct {
	Base      string
	APIKey    string
	UserID    string
	ProjectID string
	Rate      int
	Duration  time.Duration
	// PayloadSize is the message body size in bytes.
	PayloadSize int
}

// BenchReport summarizes a run.
type BenchReport struct {
	ProjectID   string
	Requests    uint64
	Success     float64
	Throughput  float64
	BytesOut    uint64
	Mean        time.Duration
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration
	Max         time.Duration
	StatusCodes map[string]int
	Errors      []string
}

func newBenchCmd() *cobra.Command {
	var (
		projectID string
		rate      int
		duration  time.Duration
		size      int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load test sendMessage against a running server",
		Long: `bench sends chat messages at a fixed rate through the HTTP API and
reports latency percentiles. Without --project a fresh project is created.
A backend API key is required since messages are sent on behalf of --user.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.fillMissing(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			log := newLogger(cmd)
			bc := BenchConfig{
				Base:        cfg.httpBase(),
				APIKey:      cfg.APIKey,
				UserID:      cfg.UserID,
				ProjectID:   projectID,
				Rate:        rate,
				Duration:    duration,
				PayloadSize: size,
			}
			if bc.UserID == "" {
				bc.UserID = "bench"
			}
			log.Info().Str("base", bc.Base).Int("rate", bc.Rate).Dur("duration", bc.Duration).
				Int("workers", runtime.NumCPU()).Msg("starting benchmark")
			rep, err := RunBench(cmd.Context(), bc, nil)
			if err != nil {
				return err
			}
			printBenchReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "existing project id (default creates one)")
	cmd.Flags().IntVar(&rate, "rate", 100, "requests per second")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "benchmark duration")
	cmd.Flags().IntVar(&size, "payload-size", 256, "message size in bytes")
	return cmd
}

// RunBench attacks POST /v1/projects/{id}/messages at cfg.Rate for
// cfg.Duration. A nil hc uses vegeta's default client.
func RunBench(ctx context.Context, cfg BenchConfig, hc *http.Client) (*BenchReport, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %d", cfg.Rate)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", cfg.Duration)
	}
	header := http.Header{}
	header.Set("X-API-Key", cfg.APIKey)
	header.Set("X-User-ID", cfg.UserID)
	header.Set("Content-Type", "application/json")

	if cfg.ProjectID == "" {
		id, err := createBenchProject(ctx, cfg, hc, header)
		if err != nil {
			return nil, err
		}
		cfg.ProjectID = id
	}

	url := cfg.Base + "/v1/projects/" + cfg.ProjectID + "/messages"
	filler := bytes.Repeat([]byte("x"), max(cfg.PayloadSize, 1))
	var seq atomic.Uint64
	targeter := func(t *vegeta.Target) error {
		n := seq.Add(1)
		body, err := json.Marshal(map[string]string{
			"content":  strconv.FormatUint(n, 10) + " " + string(filler),
			"senderId": cfg.UserID,
		})
		if err != nil {
			return err
		}
		t.Method = http.MethodPost
		t.URL = url
		t.Header = header
		t.Body = body
		return nil
	}

	opts := []func(*vegeta.Attacker){vegeta.Workers(uint64(runtime.NumCPU()))}
	if hc != nil {
		opts = append(opts, vegeta.Client(hc))
	}
	attacker := vegeta.NewAttacker(opts...)
	rate := vegeta.Rate{Freq: cfg.Rate, Per: time.Second}
	var metrics vegeta.Metrics
	results := attacker.Attack(targeter, rate, cfg.Duration, "sendMessage")
	done := ctx.Done()
loop:
	for {
		select {
		case <-done:
			attacker.Stop()
			done = nil
		case res, ok := <-results:
			if !ok {
				break loop
			}
			metrics.Add(res)
		}
	}
	metrics.Close()

	return &BenchReport{
		ProjectID:   cfg.ProjectID,
		Requests:    metrics.Requests,
		Success:     metrics.Success,
		Throughput:  metrics.Throughput,
		BytesOut:    metrics.BytesOut.Total,
		Mean:        metrics.Latencies.Mean,
		P50:         metrics.Latencies.P50,
		P95:         metrics.Latencies.P95,
		P99:         metrics.Latencies.P99,
		Max:         metrics.Latencies.Max,
		StatusCodes: metrics.StatusCodes,
		Errors:      metrics.Errors,
	}, nil
}

func createBenchProject(ctx context.Context, cfg BenchConfig, hc *http.Client, header http.Header) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"name":    "bench " + time.Now().UTC().Format(time.RFC3339),
		"content": "",
		"ownerId": cfg.UserID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Base+"/v1/projects", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header = header.Clone()
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create project: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return "", fmt.Errorf("create project: unexpected response %q", raw)
	}
	return out.ID, nil
}

func printBenchReport(w io.Writer, r *BenchReport) {
	fmt.Fprintf(w, "Project:     %s\n", r.ProjectID)
	fmt.Fprintf(w, "Requests:    %s\n", humanize.Comma(int64(r.Requests)))
	fmt.Fprintf(w, "Success:     %.2f%%\n", r.Success*100)
	fmt.Fprintf(w, "Throughput:  %.1f req/s\n", r.Throughput)
	fmt.Fprintf(w, "Sent:        %s\n", humanize.IBytes(r.BytesOut))
	fmt.Fprintf(w, "Latency:     mean %s  p50 %s  p95 %s  p99 %s  max %s\n",
		r.Mean.Round(time.Microsecond), r.P50.Round(time.Microsecond), r.P95.Round(time.Microsecond),
		r.P99.Round(time.Microsecond), r.Max.Round(time.Microsecond))

	codes := make([]string, 0, len(r.StatusCodes))
	for c := range r.StatusCodes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	fmt.Fprintf(w, "Status codes:")
	for _, c := range codes {
		fmt.Fprintf(w, " %s=%d", c, r.StatusCodes[c])
	}
	fmt.Fprintln(w)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "Error: %s\n", e)
	}
}
