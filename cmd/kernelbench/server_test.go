package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kernels/internal/tensor"
	"github.com/23skdu/longbow-kernels/internal/tensorio"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWithLimit(t, 0)
}

func newTestServerWithLimit(t *testing.T, maxBodyBytes int64) *httptest.Server {
	t.Helper()
	eng, err := newEngine(&rootOptions{threads: 2})
	require.NoError(t, err)
	ts := httptest.NewServer(NewServer(eng, 2, maxBodyBytes).routes())
	t.Cleanup(ts.Close)
	return ts
}

func arrowBody(t *testing.T, in *tensor.Tensor) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tensorio.Write(&buf, in, tensorio.DefaultChunkSize))
	return &buf
}

func postReduce(t *testing.T, ts *httptest.Server, query string, in *tensor.Tensor) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/reduce?"+query, arrowStreamType, arrowBody(t, in))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func nhwcInput() *tensor.Tensor {
	return tensor.FromSlice("in", []float32{1, 2, 3, 4, 5, 6, 7, 8}, 1, 2, 2, 2)
}

func TestServer_ReduceOnDevice(t *testing.T) {
	ts := newTestServer(t)

	resp := postReduce(t, ts, "type=sum&axes=1,2&runtime=gpu", nhwcInput())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "opencl", resp.Header.Get("X-Kernels-Runtime"))
	assert.Equal(t, arrowStreamType, resp.Header.Get("Content-Type"))

	out, err := tensorio.Read(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2}, out.Shape())
	assert.Equal(t, []float32{16, 20}, tensor.Data[float32](out))
}

func TestServer_ReduceFallsBackToCPU(t *testing.T) {
	ts := newTestServer(t)

	resp := postReduce(t, ts, "type=max&axes=3&keepdims=false&runtime=gpu", nhwcInput())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cpu", resp.Header.Get("X-Kernels-Runtime"))

	out, err := tensorio.Read(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{2, 4, 6, 8}, tensor.Data[float32](out))
}

func TestServer_ReduceAllAxes(t *testing.T) {
	ts := newTestServer(t)

	in := tensor.FromSlice("in", []int32{1, 2, 3, 4, 5, 6}, 2, 3)
	resp := postReduce(t, ts, "type=sum&keepdims=false", in)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out, err := tensorio.Read(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Size())
	assert.Equal(t, []int32{21}, tensor.Data[int32](out))
}

func TestServer_ReduceErrors(t *testing.T) {
	ts := newTestServer(t)

	t.Run("method", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/reduce")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("bad type", func(t *testing.T) {
		resp := postReduce(t, ts, "type=median", nhwcInput())
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad axes", func(t *testing.T) {
		resp := postReduce(t, ts, "axes=1,x", nhwcInput())
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/reduce", arrowStreamType, strings.NewReader("not arrow"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("quantized prod", func(t *testing.T) {
		in := tensor.FromSlice("in", []uint8{1, 2, 3, 4}, 2, 2)
		resp := postReduce(t, ts, "type=prod&axes=1", in)
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})
}

func TestServer_ReduceRejectsOversizedBody(t *testing.T) {
	ts := newTestServerWithLimit(t, 64)

	resp := postReduce(t, ts, "type=sum", tensor.FromSlice("in", make([]float32, 256), 16, 16))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err := http.Post(ts.URL+"/reduce", arrowStreamType, strings.NewReader(strings.Repeat("x", 65)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServer_TunedParams(t *testing.T) {
	ts := newTestServer(t)

	resp := postReduce(t, ts, "type=mean&axes=3&runtime=gpu", nhwcInput())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tuned, err := http.Get(ts.URL + "/tuned-params")
	require.NoError(t, err)
	defer tuned.Body.Close()
	require.Equal(t, http.StatusOK, tuned.StatusCode)
	assert.Equal(t, "application/cbor", tuned.Header.Get("Content-Type"))

	var decoded struct {
		Version int                 `cbor:"1,keyasint"`
		Params  map[string][]uint32 `cbor:"2,keyasint"`
	}
	require.NoError(t, cbor.NewDecoder(tuned.Body).Decode(&decoded))
	assert.Equal(t, 1, decoded.Version)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))

	postReduce(t, ts, "type=sum&axes=1,2", nhwcInput())

	metrics, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	text, _ := io.ReadAll(metrics.Body)
	assert.Contains(t, string(text), "kernels_server_elements_reduced_total")
	assert.Contains(t, string(text), "kernels_op_runs_total")
}

func TestParseReduceQuery(t *testing.T) {
	rq, err := parseReduceQuery(map[string][]string{})
	require.NoError(t, err)
	assert.True(t, rq.keepDims)
	assert.Nil(t, rq.axes)
	assert.Equal(t, "mean", rq.typ.String())
	assert.Equal(t, "cpu", rq.runtime.String())

	rq, err = parseReduceQuery(map[string][]string{
		"axes":           {" -1, 0"},
		"out_scale":      {"0.5"},
		"out_zero_point": {"3"},
		"runtime":        {"opencl"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{-1, 0}, rq.axes)
	assert.Equal(t, float32(0.5), rq.outScale)
	assert.Equal(t, int32(3), rq.outZero)
	assert.Equal(t, "opencl", rq.runtime.String())

	_, err = parseReduceQuery(map[string][]string{"keepdims": {"maybe"}})
	assert.Error(t, err)
	_, err = parseReduceQuery(map[string][]string{"runtime": {"tpu"}})
	assert.Error(t, err)
}
