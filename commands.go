package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"amd-helper/audio"
	"amd-helper/capture"
	"amd-helper/config"
	"amd-helper/models"
	"amd-helper/notify"
	"amd-helper/ocr"
	"amd-helper/pipeline"
	"amd-helper/report"
	"amd-helper/storage"

	"github.com/spf13/cobra"
)

const (
	keepRuns   = 500
	staleAfter = time.Hour
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the helper and listen for triggers on localhost",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	notifier := notify.NewDesktop(logger, cfg.Language, cfg.Notify)
	reporter := report.New(logger, cfg.SentryDSN, version)
	defer reporter.Flush()
	pipeline.SweepStale(logger, cfg.TempDir(), staleAfter)

	opts := []pipeline.Option{
		pipeline.WithFailureHook(func(res pipeline.Result) {
			reporter.Report(report.Failure{
				RunID:   res.RunID,
				Engine:  res.Engine,
				Lang:    res.Lang,
				TextLen: res.TextLen,
				Err:     res.Err,
			})
			if errors.Is(res.Err, capture.ErrNoCaptureTool) {
				notifier.Notify(notify.KeyNoCaptureTool)
				return
			}
			notifier.Notify(notify.KeyRunFailed, res.Err)
		}),
	}
	var history storage.RunHistory
	store, err := storage.NewProviderSQL(cfg.DBPATH, logger)
	if err != nil {
		logger.Warn("run history disabled", "db", cfg.DBPATH, "error", err)
	} else {
		defer store.Close()
		if n, err := store.PruneRuns(keepRuns); err != nil {
			logger.Warn("failed to prune history", "error", err)
		} else if n > 0 {
			logger.Debug("pruned history", "deleted", n)
		}
		history = store
		opts = append(opts, pipeline.WithObserver(store))
	}

	capturer := capture.NewCapturer(logger, cfg)
	if tool, err := capturer.Tool(); err != nil {
		logger.Warn("no screenshot tool available yet", "error", err)
	} else {
		logger.Info("screenshot tool", "tool", tool)
	}
	logger.Info("ocr backend", "backend", ocr.Backend, "languages", cfg.OCRLanguages)
	orch := pipeline.New(logger, cfg,
		capturer,
		ocr.NewRecognizer(logger, cfg),
		audio.NewPlayer(logger, cfg.PollInterval()),
		opts...)

	srv := NewServer(logger, cfg, cfgPath, orch, history, notifier)
	notifier.Notify(notify.KeyReady, cfg.RPCPort)
	return srv.ListenToRequests(ctx, cfg.RPCPort)
}

type rpcClient struct {
	base string
	http *http.Client
}

func newRPCClient(port int) *rpcClient {
	return &rpcClient{
		base: "http://127.0.0.1:" + strconv.Itoa(port),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// call decodes a JSON response into out when out is not nil.
func (c *rpcClient) call(ctx context.Context, method, path string, query url.Values, out any) (int, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("is the helper running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func newTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running helper to capture and read a region",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp triggerResponse
			code, err := newRPCClient(cfg.RPCPort).call(cmd.Context(), http.MethodPost, "/trigger", nil, &resp)
			if err != nil {
				return err
			}
			if code == http.StatusConflict {
				fmt.Fprintln(cmd.OutOrStdout(), "busy:", resp.Message)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Stop the current run and its playback",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]bool
			if _, err := newRPCClient(cfg.RPCPort).call(cmd.Context(), http.MethodPost, "/cancel", nil, &resp); err != nil {
				return err
			}
			if resp["cancelled"] {
				fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "idle")
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the helper is busy and which engine it uses",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp statusResponse
			if _, err := newRPCClient(cfg.RPCPort).call(cmd.Context(), http.MethodGet, "/status", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\nbusy: %v\nengine: %s (%s)\nlanguage: %s\n",
				resp.Version, resp.Busy, resp.Engine, resp.Provider, resp.Language)
			return nil
		},
	}
}

func newEngineCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:       "engine <" + config.EngineOnline + "|" + config.EngineLocal + ">",
		Short:     "Switch the primary speech engine",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{config.EngineOnline, config.EngineLocal},
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"name": {args[0]}}
			if provider != "" {
				q.Set("provider", provider)
			}
			var resp statusResponse
			if _, err := newRPCClient(cfg.RPCPort).call(cmd.Context(), http.MethodPost, "/engine", q, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "engine: %s (%s)\n", resp.Engine, resp.Provider)
			return nil
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "online provider: "+config.ProviderGoogle+" or "+config.ProviderKokoro)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var runs []models.RunRecord
			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if _, err := newRPCClient(cfg.RPCPort).call(cmd.Context(), http.MethodGet, "/history", q, &runs); err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

func printRuns(w io.Writer, runs []models.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tOUTCOME\tLANG\tCHARS\tTIER\tTOOK\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Outcome, r.Lang, r.TextLen, r.Tier,
			r.Duration().Round(10*time.Millisecond), r.Error)
	}
	tw.Flush()
}
