// Package sui talks to the chain: a JSON-RPC full node for checkpoints, gas
// prices and dry runs, and a GraphQL indexer for package lineage. All calls
// carry their own timeout; failures are wrapped, classification into the
// error taxonomy happens in the service layer.
package sui

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
)

// GasBudget is the fixed budget attached to dry-run transactions. The
// caller never pays it; it only has to be large enough for any approve call.
const GasBudget uint64 = 500_000_000

// DefaultCallTimeout bounds every upstream call.
const DefaultCallTimeout = 10 * time.Second

// Client implements ports.ChainReader against a full node + GraphQL
// endpoint pair.
type Client struct {
	rpc         *rpc.Client
	graphqlURL  string
	httpClient  *http.Client
	callTimeout time.Duration
}

var _ ports.ChainReader = (*Client)(nil)

// Dial connects the JSON-RPC client and prepares the GraphQL transport.
func Dial(ctx context.Context, nodeURL, graphqlURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, nodeURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing full node %s", nodeURL)
	}
	return &Client{
		rpc:         rpcClient,
		graphqlURL:  graphqlURL,
		httpClient:  &http.Client{Timeout: DefaultCallTimeout},
		callTimeout: DefaultCallTimeout,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

type checkpoint struct {
	TimestampMs string `json:"timestampMs"`
}

// LatestCheckpointTimestamp fetches the newest checkpoint and returns its
// timestamp in ms.
func (c *Client) LatestCheckpointTimestamp(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var seq string
	if err := c.rpc.CallContext(ctx, &seq, "sui_getLatestCheckpointSequenceNumber"); err != nil {
		return 0, errors.Wrap(err, "fetching latest checkpoint sequence")
	}
	var cp checkpoint
	if err := c.rpc.CallContext(ctx, &cp, "sui_getCheckpoint", seq); err != nil {
		return 0, errors.Wrapf(err, "fetching checkpoint %s", seq)
	}
	ts, err := strconv.ParseUint(cp.TimestampMs, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing checkpoint timestamp %q", cp.TimestampMs)
	}
	return ts, nil
}

// ReferenceGasPrice fetches the current reference gas price.
func (c *Client) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var price string
	if err := c.rpc.CallContext(ctx, &price, "suix_getReferenceGasPrice"); err != nil {
		return 0, errors.Wrap(err, "fetching reference gas price")
	}
	v, err := strconv.ParseUint(price, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing reference gas price %q", price)
	}
	return v, nil
}

const lineageQuery = `query PackageLineage($address: SuiAddress!) {
  object(address: $address) {
    asMovePackage {
      firstPackage: packageAtVersion(version: 1) { address }
      latestPackage { address }
    }
  }
}`

type lineageResponse struct {
	Data struct {
		Object *struct {
			AsMovePackage *struct {
				FirstPackage *struct {
					Address string `json:"address"`
				} `json:"firstPackage"`
				LatestPackage *struct {
					Address string `json:"address"`
				} `json:"latestPackage"`
			} `json:"asMovePackage"`
		} `json:"object"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PackageLineage resolves the first and latest deployed addresses of a
// package through the GraphQL indexer.
func (c *Client) PackageLineage(ctx context.Context, pkg core.Address) (ports.PackageLineage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"query":     lineageQuery,
		"variables": map[string]string{"address": pkg.String()},
	})
	if err != nil {
		return ports.PackageLineage{}, errors.Wrap(err, "encoding lineage query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return ports.PackageLineage{}, errors.Wrap(err, "building lineage request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.PackageLineage{}, errors.Wrap(err, "querying package lineage")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ports.PackageLineage{}, errors.Errorf("lineage query status %d", resp.StatusCode)
	}

	var out lineageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.PackageLineage{}, errors.Wrap(err, "decoding lineage response")
	}
	if len(out.Errors) > 0 {
		return ports.PackageLineage{}, errors.Errorf("lineage query error: %s", out.Errors[0].Message)
	}
	obj := out.Data.Object
	if obj == nil || obj.AsMovePackage == nil ||
		obj.AsMovePackage.FirstPackage == nil || obj.AsMovePackage.LatestPackage == nil {
		return ports.PackageLineage{}, errors.New("package not found")
	}

	first, err := core.ParseAddress(obj.AsMovePackage.FirstPackage.Address)
	if err != nil {
		return ports.PackageLineage{}, errors.Wrap(err, "parsing first package address")
	}
	latest, err := core.ParseAddress(obj.AsMovePackage.LatestPackage.Address)
	if err != nil {
		return ports.PackageLineage{}, errors.Wrap(err, "parsing latest package address")
	}
	return ports.PackageLineage{First: first, Latest: latest}, nil
}

type dryRunResponse struct {
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
		TransactionDigest string `json:"transactionDigest"`
	} `json:"effects"`
}

// DryRun simulates the transaction against current chain state with the
// given sender and gas price. The result never defaults to success: a
// malformed response reports Executed=false.
func (c *Client) DryRun(ctx context.Context, txBytes []byte, sender core.Address, gasPrice uint64) (ports.DryRunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	data := assembleTransactionData(txBytes, sender, gasPrice, GasBudget)
	localDigest := transactionDigest(data)

	var out dryRunResponse
	if err := c.rpc.CallContext(ctx, &out, "sui_dryRunTransactionBlock", base64.StdEncoding.EncodeToString(data)); err != nil {
		return ports.DryRunResult{}, errors.Wrapf(err, "dry running tx %s", localDigest)
	}

	status := out.Effects.Status.Status
	if status == "" {
		log.WithField("tx_digest", localDigest).Warn("dry run returned no effects status")
		return ports.DryRunResult{Executed: false, Digest: localDigest}, nil
	}
	if status != "success" {
		log.WithFields(log.Fields{
			"tx_digest": localDigest,
			"status":    status,
			"error":     out.Effects.Status.Error,
		}).Debug("dry run denied")
	}
	return ports.DryRunResult{
		Executed: true,
		Success:  status == "success",
		Status:   status,
		Digest:   localDigest,
	}, nil
}

// assembleTransactionData wraps raw PTB bytes into a full BCS
// TransactionData::V1 with an empty gas payment and the sender as gas owner.
// Layout: enum V1, kind ProgrammableTransaction, ptb, sender, gas data
// (payment, owner, price, budget), expiration None.
func assembleTransactionData(ptbBytes []byte, sender core.Address, gasPrice, gasBudget uint64) []byte {
	out := make([]byte, 0, len(ptbBytes)+2+32+1+32+8+8+1)
	out = append(out, 0) // TransactionData::V1
	out = append(out, 0) // TransactionKind::ProgrammableTransaction
	out = append(out, ptbBytes...)
	out = append(out, sender[:]...)
	out = append(out, 0) // empty gas payment vector
	out = append(out, sender[:]...)
	out = appendU64LE(out, gasPrice)
	out = appendU64LE(out, gasBudget)
	out = append(out, 0) // TransactionExpiration::None
	return out
}

func appendU64LE(out []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		out = append(out, byte(v>>(8*i)))
	}
	return out
}

// transactionDigest computes the local digest used for log correlation.
func transactionDigest(txData []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("TransactionData::"))
	h.Write(txData)
	return base58.Encode(h.Sum(nil))
}

func (c *Client) String() string {
	return fmt.Sprintf("sui.Client{graphql: %s}", c.graphqlURL)
}
