package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sqldir/lib/sqldir"
	"github.com/filecoin-project/sqldir/lib/sqlpool"
	"github.com/filecoin-project/sqldir/metrics"
)

var benchCmd = &cli.Command{
	Name:      "bench",
	Usage:     "Call a member repeatedly from concurrent workers, outside any transaction",
	ArgsUsage: "<member> [positional values...]",
	Flags: append([]cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Value:   100,
			Usage:   "total number of calls",
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Aliases: []string{"c"},
			Value:   4,
			Usage:   "number of calls in flight",
		},
		&cli.Float64Flag{
			Name:  "rate",
			Usage: "maximum calls per second, 0 for no limit",
		},
		&cli.StringFlag{
			Name:  "metrics-listen",
			Usage: "serve prometheus metrics on this address while the benchmark runs",
		},
	}, argFlags...),
	Action: func(cctx *cli.Context) error {
		if !cctx.Args().Present() {
			return xerrors.Errorf("expected a member name")
		}
		n, c := cctx.Int("count"), cctx.Int("concurrency")
		if n < 1 || c < 1 {
			return xerrors.Errorf("count and concurrency must be positive")
		}
		args, err := templateArgs(cctx)
		if err != nil {
			return err
		}

		if addr := cctx.String("metrics-listen"); addr != "" {
			if err := serveMetrics(addr); err != nil {
				return err
			}
		}

		return withDir(cctx, func(ctx context.Context, d *sqldir.Dir) error {
			q, err := member(d, cctx.Args().First())
			if err != nil {
				return err
			}

			lim := rate.NewLimiter(rate.Inf, 1)
			if r := cctx.Float64("rate"); r > 0 {
				lim = rate.NewLimiter(rate.Limit(r), 1)
			}

			res := runBench(ctx, q, args, n, c, lim)
			res.pool = d.Pool().Stat()
			res.print(cctx)
			if res.failed > 0 {
				return xerrors.Errorf("%d of %d calls failed, first: %w", res.failed, n, res.firstErr)
			}
			return nil
		})
	},
}

func serveMetrics(addr string) error {
	exporter, err := metrics.Exporter("sqldir")
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("failed to start metrics server", "err", err)
		}
	}()
	log.Infow("serving metrics", "addr", addr)
	return nil
}

type benchResult struct {
	took      time.Duration
	latencies []time.Duration
	rows      int
	failed    int
	// conflicts counts failures the store reported as unique or
	// serialization conflicts.
	conflicts int
	firstErr  error
	pool      sqlpool.Stat
}

func runBench(ctx context.Context, q *sqldir.Query, args []any, n, c int, lim *rate.Limiter) *benchResult {
	var (
		lk  sync.Mutex
		res = &benchResult{latencies: make([]time.Duration, 0, n)}
	)

	var eg errgroup.Group
	eg.SetLimit(c)

	start := time.Now()
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := lim.Wait(ctx); err != nil {
				lk.Lock()
				defer lk.Unlock()
				res.failed++
				if res.firstErr == nil {
					res.firstErr = err
				}
				return nil
			}

			callStart := time.Now()
			rows, err := q.Query(ctx, args...)
			took := time.Since(callStart)

			lk.Lock()
			defer lk.Unlock()
			res.latencies = append(res.latencies, took)
			if err != nil {
				if res.firstErr == nil {
					res.firstErr = err
				}
				res.failed++
				if sqldir.IsUniqueViolation(err) || sqldir.IsSerializationFailure(err) {
					res.conflicts++
				}
				return nil
			}
			res.rows += len(rows)
			return nil
		})
	}
	_ = eg.Wait()
	res.took = time.Since(start)

	sort.Slice(res.latencies, func(i, j int) bool { return res.latencies[i] < res.latencies[j] })
	return res
}

func (r *benchResult) percentile(p float64) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	idx := int(p * float64(len(r.latencies)-1))
	return r.latencies[idx]
}

func (r *benchResult) print(cctx *cli.Context) {
	w := cctx.App.Writer
	calls := len(r.latencies)

	status := color.GreenString("ok")
	if r.failed > 0 {
		status = color.RedString("%d failed", r.failed)
		if r.conflicts > 0 {
			status += color.YellowString(", %d conflicts", r.conflicts)
		}
	}
	_, _ = fmt.Fprintf(w, "%d calls in %s [%s]\n", calls, r.took.Truncate(time.Microsecond), status)
	if r.took > 0 {
		_, _ = fmt.Fprintf(w, "throughput: %.1f calls/s, %d rows\n", float64(calls)/r.took.Seconds(), r.rows)
	}
	_, _ = fmt.Fprintf(w, "latency: p50 %s  p90 %s  p99 %s  max %s\n",
		r.percentile(0.5), r.percentile(0.9), r.percentile(0.99), r.percentile(1))
	_, _ = fmt.Fprintf(w, "pool: %d open, %d in use\n", r.pool.Total, r.pool.Acquired)
}
