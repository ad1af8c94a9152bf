package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-kernels/internal/ops"
	"github.com/23skdu/longbow-kernels/internal/reduce"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
	"github.com/23skdu/longbow-kernels/internal/tensorio"
)

var (
	elementsReduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kernels_server_elements_reduced_total",
		Help: "Input elements folded by /reduce requests",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernels_server_request_duration_seconds",
		Help:    "Time spent processing reduce requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"code"})
)

var tracer = otel.Tracer("kernelbench-server")

const (
	arrowStreamType = "application/vnd.apache.arrow.stream"

	// DefaultMaxBodyBytes bounds a /reduce request body.
	DefaultMaxBodyBytes = 256 << 20
)

// Server reduces Arrow IPC tensors posted over HTTP.
type Server struct {
	engine       *engine
	sem          *semaphore.Weighted
	maxBodyBytes int64
}

func NewServer(eng *engine, maxConcurrent int, maxBodyBytes int64) *Server {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{
		engine:       eng,
		sem:          semaphore.NewWeighted(int64(max(maxConcurrent, 1))),
		maxBodyBytes: maxBodyBytes,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/reduce", s.handleReduce)
	mux.HandleFunc("/tuned-params", s.handleTunedParams)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// reduceQuery is the /reduce query string: type, axes (comma separated,
// absent reduces every axis), keepdims, runtime, out_scale and
// out_zero_point.
type reduceQuery struct {
	typ      reduce.Type
	axes     []int
	keepDims bool
	runtime  ops.RuntimeType
	outScale float32
	outZero  int32
}

func parseReduceQuery(q url.Values) (*reduceQuery, error) {
	rq := &reduceQuery{typ: reduce.Mean, keepDims: true, outZero: 128}
	var err error
	if v := q.Get("type"); v != "" {
		if rq.typ, err = reduce.ParseType(v); err != nil {
			return nil, err
		}
	}
	if v := q.Get("axes"); v != "" {
		for _, part := range strings.Split(v, ",") {
			a, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, status.Configurationf("bad axis %q", part)
			}
			rq.axes = append(rq.axes, a)
		}
	}
	if v := q.Get("keepdims"); v != "" {
		if rq.keepDims, err = strconv.ParseBool(v); err != nil {
			return nil, status.Configurationf("bad keepdims %q", v)
		}
	}
	if v := q.Get("runtime"); v != "" {
		if rq.runtime, err = ops.ParseRuntimeType(v); err != nil {
			return nil, err
		}
	}
	if v := q.Get("out_scale"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, status.Configurationf("bad out_scale %q", v)
		}
		rq.outScale = float32(f)
	}
	if v := q.Get("out_zero_point"); v != "" {
		z, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, status.Configurationf("bad out_zero_point %q", v)
		}
		rq.outZero = int32(z)
	}
	return rq, nil
}

// httpStatus maps an operation error onto a response code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, status.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, status.ErrNotImplemented):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *Server) handleReduce(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleReduce")
	defer span.End()

	start := time.Now()
	code := http.StatusOK
	defer func() {
		requestDuration.WithLabelValues(strconv.Itoa(code)).Observe(time.Since(start).Seconds())
	}()
	fail := func(c int, err error) {
		code = c
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, err.Error(), c)
	}

	if r.Method != http.MethodPost {
		fail(http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	rq, err := parseReduceQuery(r.URL.Query())
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, err)
			return
		}
		fail(http.StatusBadRequest, err)
		return
	}
	input, err := tensorio.Read(bytes.NewReader(body))
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		fail(http.StatusServiceUnavailable, fmt.Errorf("server busy: %w", err))
		return
	}
	defer s.sem.Release(1)

	output := newReduceOutput(input, rq.typ, rq.axes, rq.outScale, rq.outZero)
	op, err := s.engine.construct(&ops.ConstructContext{
		OpType:   ops.OpReduce,
		DataType: input.DataType(),
		Inputs:   []*tensor.Tensor{input},
		Outputs:  []*tensor.Tensor{output},
		Args: map[string]any{
			"reduce_type": rq.typ.String(),
			"axis":        rq.axes,
			"keepdims":    rq.keepDims,
		},
	}, rq.runtime)
	if err != nil {
		fail(httpStatus(err), err)
		return
	}
	span.SetAttributes(
		attribute.String("runtime", op.Runtime().String()),
		attribute.IntSlice("shape", input.Shape()),
	)
	if err := op.Run(s.engine.context(ctx)); err != nil {
		fail(httpStatus(err), err)
		return
	}
	elementsReduced.Add(float64(input.Size()))

	var buf bytes.Buffer
	if err := tensorio.Write(&buf, output, tensorio.DefaultChunkSize); err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", arrowStreamType)
	w.Header().Set("X-Kernels-Runtime", op.Runtime().String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleTunedParams returns the tuner store as CBOR.
func (s *Server) handleTunedParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var buf bytes.Buffer
	if err := s.engine.tuner.Save(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr          string
		maxConcurrent int
		maxBodyBytes  int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reductions of Arrow IPC tensors over HTTP",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(root)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           NewServer(eng, maxConcurrent, maxBodyBytes).routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			log.Info().Str("addr", addr).Int("max_concurrent", maxConcurrent).Msg("Starting kernel server")

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Info().Msg("Shutting down kernel server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return eng.close()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 4, "Maximum reductions running at once")
	cmd.Flags().Int64Var(&maxBodyBytes, "max-body-bytes", DefaultMaxBodyBytes, "Largest accepted /reduce request body")
	return cmd
}
