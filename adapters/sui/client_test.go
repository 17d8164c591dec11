package sui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []any           `json:"params"`
}

// fakeNode answers JSON-RPC calls from a method->result map and records the
// last params per method.
func fakeNode(t *testing.T, results map[string]any) (*httptest.Server, map[string][]any) {
	t.Helper()
	seen := map[string][]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen[req.Method] = req.Params
		result, ok := results[req.Method]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func dialTest(t *testing.T, nodeURL, graphqlURL string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), nodeURL, graphqlURL)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestLatestCheckpointTimestamp(t *testing.T) {
	srv, seen := fakeNode(t, map[string]any{
		"sui_getLatestCheckpointSequenceNumber": "4213",
		"sui_getCheckpoint":                     map[string]any{"timestampMs": "1724500000123"},
	})
	c := dialTest(t, srv.URL, "")

	ts, err := c.LatestCheckpointTimestamp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1724500000123), ts)
	assert.Equal(t, []any{"4213"}, seen["sui_getCheckpoint"])
}

func TestLatestCheckpointTimestampBadPayload(t *testing.T) {
	srv, _ := fakeNode(t, map[string]any{
		"sui_getLatestCheckpointSequenceNumber": "1",
		"sui_getCheckpoint":                     map[string]any{"timestampMs": "not-a-number"},
	})
	c := dialTest(t, srv.URL, "")

	_, err := c.LatestCheckpointTimestamp(context.Background())
	assert.Error(t, err)
}

func TestReferenceGasPrice(t *testing.T) {
	srv, _ := fakeNode(t, map[string]any{"suix_getReferenceGasPrice": "750"})
	c := dialTest(t, srv.URL, "")

	price, err := c.ReferenceGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(750), price)
}

func TestDryRunSuccess(t *testing.T) {
	srv, seen := fakeNode(t, map[string]any{
		"sui_dryRunTransactionBlock": map[string]any{
			"effects": map[string]any{
				"status":            map[string]any{"status": "success"},
				"transactionDigest": "9zA1",
			},
		},
	})
	c := dialTest(t, srv.URL, "")

	sender, err := core.ParseAddress("0x2a")
	require.NoError(t, err)
	ptb := []byte{0x00, 0x01, 0x02}

	res, err := c.DryRun(context.Background(), ptb, sender, 750)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.True(t, res.Success)
	assert.Equal(t, "success", res.Status)
	assert.NotEmpty(t, res.Digest)

	// The wrapped TransactionData must embed the raw PTB and gas params.
	require.Len(t, seen["sui_dryRunTransactionBlock"], 1)
	raw, err := base64.StdEncoding.DecodeString(seen["sui_dryRunTransactionBlock"][0].(string))
	require.NoError(t, err)
	want := assembleTransactionData(ptb, sender, 750, GasBudget)
	assert.Equal(t, want, raw)
}

func TestDryRunFailureStatus(t *testing.T) {
	srv, _ := fakeNode(t, map[string]any{
		"sui_dryRunTransactionBlock": map[string]any{
			"effects": map[string]any{
				"status": map[string]any{"status": "failure", "error": "MoveAbort"},
			},
		},
	})
	c := dialTest(t, srv.URL, "")

	res, err := c.DryRun(context.Background(), []byte{0x00}, core.Address{}, 1)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.False(t, res.Success)
}

func TestDryRunMissingEffectsIsNotSuccess(t *testing.T) {
	srv, _ := fakeNode(t, map[string]any{
		"sui_dryRunTransactionBlock": map[string]any{},
	})
	c := dialTest(t, srv.URL, "")

	res, err := c.DryRun(context.Background(), []byte{0x00}, core.Address{}, 1)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.False(t, res.Success)
}

func TestAssembleTransactionDataLayout(t *testing.T) {
	sender, err := core.ParseAddress("0x11")
	require.NoError(t, err)
	ptb := []byte{0xaa, 0xbb}

	data := assembleTransactionData(ptb, sender, 0x0102030405060708, 500_000_000)

	require.Len(t, data, 2+len(ptb)+32+1+32+8+8+1)
	assert.Equal(t, byte(0), data[0]) // V1
	assert.Equal(t, byte(0), data[1]) // ProgrammableTransaction
	assert.Equal(t, ptb, data[2:4])
	assert.Equal(t, sender[:], data[4:36])
	assert.Equal(t, byte(0), data[36]) // empty payment
	assert.Equal(t, sender[:], data[37:69])
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, data[69:77])
	assert.Equal(t, byte(0), data[len(data)-1]) // expiration None
}

func TestPackageLineage(t *testing.T) {
	gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vars := req["variables"].(map[string]any)
		assert.Contains(t, vars["address"], "0x")
		_, err := w.Write([]byte(`{"data":{"object":{"asMovePackage":{
			"firstPackage":{"address":"0x0000000000000000000000000000000000000000000000000000000000000001"},
			"latestPackage":{"address":"0x0000000000000000000000000000000000000000000000000000000000000007"}
		}}}}`))
		require.NoError(t, err)
	}))
	t.Cleanup(gql.Close)

	srv, _ := fakeNode(t, nil)
	c := dialTest(t, srv.URL, gql.URL)

	pkg, err := core.ParseAddress("0x7")
	require.NoError(t, err)
	lineage, err := c.PackageLineage(context.Background(), pkg)
	require.NoError(t, err)

	first, _ := core.ParseAddress("0x1")
	latest, _ := core.ParseAddress("0x7")
	assert.Equal(t, first, lineage.First)
	assert.Equal(t, latest, lineage.Latest)
}

func TestPackageLineageNotFound(t *testing.T) {
	gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"object":null}}`))
	}))
	t.Cleanup(gql.Close)

	srv, _ := fakeNode(t, nil)
	c := dialTest(t, srv.URL, gql.URL)

	_, err := c.PackageLineage(context.Background(), core.Address{})
	assert.Error(t, err)
}

func TestPackageLineageGraphQLError(t *testing.T) {
	gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	t.Cleanup(gql.Close)

	srv, _ := fakeNode(t, nil)
	c := dialTest(t, srv.URL, gql.URL)

	_, err := c.PackageLineage(context.Background(), core.Address{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
