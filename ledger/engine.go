package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"vote-ledger-backend/models"
	"vote-ledger-backend/storage"
)

// AssetRegistry is the on-chain side: minting ledger assets and
// repointing their metadata.
type AssetRegistry interface {
	Mint(ctx context.Context, owner, name, metadataURI string) (address, signature string, err error)
	UpdateMetadataURI(ctx context.Context, assetAddress, newURI string) (signature string, err error)
}

// MetadataStore is the off-chain side: uploading and reading back the
// vote documents the assets point at.
type MetadataStore interface {
	Upload(ctx context.Context, doc interface{}) (string, error)
	FetchMetadata(ctx context.Context, uri string) (*models.VoteMetadata, error)
}

// SnapshotSource produces the collection snapshot used for lookups and
// aggregates, typically the rate-limited cache.
type SnapshotSource interface {
	Assets(ctx context.Context) ([]models.LedgerAsset, error)
}

const (
	retryAttempts = 3
	retryBackoff  = 500 * time.Millisecond
)

// Engine holds the vote-ledger business logic: one soulbound asset per
// voter, one attribute entry per proposal, aggregates computed by
// scanning the whole collection. All I/O goes through the injected
// collaborators.
type Engine struct {
	registry  AssetRegistry
	store     MetadataStore
	snapshots SnapshotSource
}

func NewEngine(registry AssetRegistry, store MetadataStore, snapshots SnapshotSource) *Engine {
	return &Engine{
		registry:  registry,
		store:     store,
		snapshots: snapshots,
	}
}

// LookupLedger finds the ledger asset owned by the given wallet, or nil
// when the owner has never voted. If an owner somehow holds more than
// one ledger in the collection, the one with the smallest address wins;
// scan order from the RPC node is not stable, so the tie-break must not
// depend on it.
func (e *Engine) LookupLedger(ctx context.Context, owner string) (*models.LedgerAsset, error) {
	assets, err := e.snapshots.Assets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection: %w", err)
	}

	var found *models.LedgerAsset
	for i := range assets {
		if assets[i].Owner != owner {
			continue
		}
		if found == nil || assets[i].Address < found.Address {
			found = &assets[i]
		}
	}

	return found, nil
}

// HasVoted reports whether the ledger already records a decision for
// the proposal. A fetch failure is surfaced as a storage
// MetadataFetchError; only CastVote downgrades that to "not voted".
func (e *Engine) HasVoted(ctx context.Context, asset *models.LedgerAsset, proposalID string) (bool, error) {
	metadata, err := e.store.FetchMetadata(ctx, asset.URI)
	if err != nil {
		return false, err
	}
	return metadata.Attributes.FindByProposal(proposalID) != nil, nil
}

// CastVote records one decision for one voter. First-time voters get a
// fresh document and a newly minted frozen asset; returning voters get
// an appended attribute and a repointed asset. The two external writes
// are not atomic: if the on-chain step fails after the upload, the
// uploaded document is orphaned and the ledger keeps its old URI. The
// returned error then carries the staged URI so the pointer update can
// be retried without re-uploading.
//
// Two concurrent casts by the same voter can both pass the has-voted
// gate; the ledger does not lock per owner.
func (e *Engine) CastVote(ctx context.Context, owner, username, avatar string, proposalID int, voteValue string) (string, error) {
	if owner == "" {
		return "", ErrNoWallet
	}
	if voteValue != models.VoteValueYes && voteValue != models.VoteValueNo {
		return "", ErrInvalidVoteValue
	}

	proposalKey := strconv.Itoa(proposalID)

	asset, err := e.LookupLedger(ctx, owner)
	if err != nil {
		return "", err
	}

	if asset == nil {
		return e.mintFirstVote(ctx, owner, username, avatar, proposalKey, voteValue)
	}
	return e.appendVote(ctx, asset, proposalKey, voteValue)
}

func (e *Engine) mintFirstVote(ctx context.Context, owner, username, avatar, proposalKey, voteValue string) (string, error) {
	doc := models.NewVoteMetadata(username, avatar, proposalKey, voteValue)

	var metadataURI string
	err := withRetry(ctx, func() error {
		var uploadErr error
		metadataURI, uploadErr = e.store.Upload(ctx, doc)
		return uploadErr
	})
	if err != nil {
		return "", err
	}

	var signature string
	err = withRetry(ctx, func() error {
		var mintErr error
		_, signature, mintErr = e.registry.Mint(ctx, owner, username, metadataURI)
		return mintErr
	})
	if err != nil {
		return "", fmt.Errorf("metadata staged at %s: %w", metadataURI, err)
	}

	return signature, nil
}

func (e *Engine) appendVote(ctx context.Context, asset *models.LedgerAsset, proposalKey, voteValue string) (string, error) {
	voted, err := e.HasVoted(ctx, asset, proposalKey)
	if err != nil {
		var fetchErr *storage.MetadataFetchError
		if !errors.As(err, &fetchErr) {
			return "", err
		}
		// Fail-open, as the widget has always behaved: an unreadable
		// document counts as "not voted". A transient fetch failure
		// here can let a duplicate through.
		log.Printf("has-voted check failed open for asset %s: %v", asset.Address, err)
	}
	if voted {
		return "", ErrDuplicateVote
	}

	metadata, err := e.store.FetchMetadata(ctx, asset.URI)
	if err != nil {
		return "", err
	}

	metadata.Attributes = append(metadata.Attributes, models.VoteAttribute{
		ProposalID: proposalKey,
		Value:      voteValue,
	})

	var newURI string
	err = withRetry(ctx, func() error {
		var uploadErr error
		newURI, uploadErr = e.store.Upload(ctx, metadata)
		return uploadErr
	})
	if err != nil {
		return "", err
	}

	var signature string
	err = withRetry(ctx, func() error {
		var updateErr error
		signature, updateErr = e.registry.UpdateMetadataURI(ctx, asset.Address, newURI)
		return updateErr
	})
	if err != nil {
		return "", fmt.Errorf("metadata staged at %s: %w", newURI, err)
	}

	return signature, nil
}

// ApprovalPercentage computes 100*yes/total over every decision the
// collection records for one proposal. Voters whose documents cannot be
// fetched are skipped rather than failing the whole aggregate. Returns
// 0 when the proposal has no recorded decisions.
func (e *Engine) ApprovalPercentage(ctx context.Context, proposalID int) (float64, error) {
	assets, err := e.snapshots.Assets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan collection: %w", err)
	}

	proposalKey := strconv.Itoa(proposalID)
	yesVotes := 0
	totalVotes := 0

	for i := range assets {
		metadata, err := e.store.FetchMetadata(ctx, assets[i].URI)
		if err != nil {
			log.Printf("Skipping voter %s in approval aggregate: %v", assets[i].Owner, err)
			continue
		}
		attr := metadata.Attributes.FindByProposal(proposalKey)
		if attr == nil {
			continue
		}
		totalVotes++
		if attr.Value == models.VoteValueYes {
			yesVotes++
		}
	}

	if totalVotes == 0 {
		return 0, nil
	}
	return float64(yesVotes) / float64(totalVotes) * 100, nil
}

// VoterLeaderboard aggregates every voter's totals across all
// proposals, in first-seen snapshot order. Voters whose documents
// cannot be fetched are skipped.
func (e *Engine) VoterLeaderboard(ctx context.Context) ([]models.VoterDetail, error) {
	assets, err := e.snapshots.Assets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection: %w", err)
	}

	byOwner := make(map[string]*models.VoterDetail)
	order := make([]string, 0, len(assets))

	for i := range assets {
		owner := assets[i].Owner
		metadata, err := e.store.FetchMetadata(ctx, assets[i].URI)
		if err != nil {
			log.Printf("Skipping voter %s in leaderboard aggregate: %v", owner, err)
			continue
		}

		detail, ok := byOwner[owner]
		if !ok {
			username := metadata.Name
			if username == "" {
				username = "Unknown"
			}
			detail = &models.VoterDetail{
				Username: username,
				Image:    metadata.Image,
			}
			byOwner[owner] = detail
			order = append(order, owner)
		}

		for _, attr := range metadata.Attributes {
			detail.TotalVotes++
			if attr.Value == models.VoteValueYes {
				detail.YesVotes++
			}
		}
	}

	details := make([]models.VoterDetail, 0, len(order))
	for _, owner := range order {
		detail := byOwner[owner]
		if detail.TotalVotes > 0 {
			detail.ApprovalRating = float64(detail.YesVotes) / float64(detail.TotalVotes) * 100
		}
		details = append(details, *detail)
	}

	return details, nil
}

// withRetry runs op up to retryAttempts times with linear backoff.
// Transient store or RPC failures are the main consistency hazard, so
// the external writes all go through here.
func withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return err
}
