package ports

import (
	"context"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
)

// PackageLineage is the deployment history of a package address: the first
// deployed version anchors the identity namespace, the latest gates calls.
type PackageLineage struct {
	First  core.Address
	Latest core.Address
}

// DryRunResult is the outcome of a simulated execution. Executed reports
// whether the transaction ran at all; Success whether its effects status is
// clean. Any ambiguity is surfaced as an error, never as Success.
type DryRunResult struct {
	Executed bool
	Success  bool
	Status   string
	Digest   string
}

// ChainReader is the full-node boundary. Every call carries its own timeout
// below the context; there are no infinite-wait paths.
type ChainReader interface {
	// LatestCheckpointTimestamp returns the timestamp (ms) of the most
	// recent checkpoint the node has seen.
	LatestCheckpointTimestamp(ctx context.Context) (uint64, error)

	// ReferenceGasPrice returns the current reference gas price.
	ReferenceGasPrice(ctx context.Context) (uint64, error)

	// PackageLineage resolves the first and latest deployed addresses of a
	// package.
	PackageLineage(ctx context.Context, pkg core.Address) (PackageLineage, error)

	// DryRun simulates the transaction with sender as signer at the given
	// gas price, without committing effects or spending caller gas.
	DryRun(ctx context.Context, txBytes []byte, sender core.Address, gasPrice uint64) (DryRunResult, error)

	// VerifyPersonalMessage checks a wallet signature over a personal
	// message for the given address. Multi-sig and smart-wallet schemes may
	// need a chain lookup to resolve owners.
	VerifyPersonalMessage(ctx context.Context, message []byte, signature []byte, addr core.Address) error
}

// ProfileResolver maps an identity to an application profile id. The
// profile subsystem itself (caches, game objects) is an external
// collaborator; only the seam lives here.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, identity []byte) (string, error)
}
