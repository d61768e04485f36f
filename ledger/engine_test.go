package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vote-ledger-backend/models"
	"vote-ledger-backend/storage"
)

// fakeRegistry plays both the on-chain registry and the snapshot
// source, so tests see writes immediately instead of waiting out a
// cache TTL.
type fakeRegistry struct {
	mu      sync.Mutex
	assets  []models.LedgerAsset
	mints   int
	updates int
}

func (r *fakeRegistry) Mint(ctx context.Context, owner, name, metadataURI string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mints++
	address := fmt.Sprintf("asset-%d", r.mints)
	r.assets = append(r.assets, models.LedgerAsset{
		Address: address,
		Owner:   owner,
		Name:    name,
		URI:     metadataURI,
		Frozen:  true,
	})
	return address, "sig-mint-" + address, nil
}

func (r *fakeRegistry) UpdateMetadataURI(ctx context.Context, assetAddress, newURI string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.assets {
		if r.assets[i].Address == assetAddress {
			r.assets[i].URI = newURI
			r.updates++
			return fmt.Sprintf("sig-update-%d", r.updates), nil
		}
	}
	return "", fmt.Errorf("unknown asset %s", assetAddress)
}

func (r *fakeRegistry) Assets(ctx context.Context) ([]models.LedgerAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.assets), nil
}

type fakeStore struct {
	mu          sync.Mutex
	docs        map[string]*models.VoteMetadata
	uploads     int
	failUploads int             // fail the next N uploads
	failFetch   map[string]bool // URIs that cannot be fetched
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[string]*models.VoteMetadata),
		failFetch: make(map[string]bool),
	}
}

func (s *fakeStore) Upload(ctx context.Context, doc interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUploads > 0 {
		s.failUploads--
		return "", &storage.UploadError{Status: 500, Msg: "store unavailable"}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", &storage.UploadError{Err: err}
	}
	var stored models.VoteMetadata
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", &storage.UploadError{Err: err}
	}

	s.uploads++
	uri := fmt.Sprintf("mem://doc-%d", s.uploads)
	s.docs[uri] = &stored
	return uri, nil
}

func (s *fakeStore) FetchMetadata(ctx context.Context, uri string) (*models.VoteMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFetch[uri] {
		return nil, &storage.MetadataFetchError{URI: uri, Err: errors.New("unreachable")}
	}
	doc, ok := s.docs[uri]
	if !ok {
		return nil, &storage.MetadataFetchError{URI: uri, Err: errors.New("not found")}
	}
	clone := *doc
	clone.Attributes = slices.Clone(doc.Attributes)
	return &clone, nil
}

func newTestEngine() (*Engine, *fakeRegistry, *fakeStore) {
	reg := &fakeRegistry{}
	store := newFakeStore()
	return NewEngine(reg, store, reg), reg, store
}

func TestFirstVoteMintsLedger(t *testing.T) {
	engine, reg, store := newTestEngine()
	ctx := context.Background()

	asset, err := engine.LookupLedger(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Nil(t, asset, "unknown owner has no ledger")

	sig, err := engine.CastVote(ctx, "wallet-1", "alice", "avatar.png", 1, models.VoteValueYes)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, 1, reg.mints)
	assert.Equal(t, 0, reg.updates)

	asset, err = engine.LookupLedger(ctx, "wallet-1")
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.True(t, asset.Frozen)
	assert.Equal(t, "alice", asset.Name)

	metadata, err := store.FetchMetadata(ctx, asset.URI)
	require.NoError(t, err)
	require.Len(t, metadata.Attributes, 1)
	assert.Equal(t, "1", metadata.Attributes[0].ProposalID)
	assert.Equal(t, models.VoteValueYes, metadata.Attributes[0].Value)
}

func TestHasVotedTransitions(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.CastVote(ctx, "wallet-1", "alice", "", 1, models.VoteValueNo)
	require.NoError(t, err)

	asset, err := engine.LookupLedger(ctx, "wallet-1")
	require.NoError(t, err)
	require.NotNil(t, asset)

	voted, err := engine.HasVoted(ctx, asset, "1")
	require.NoError(t, err)
	assert.True(t, voted)

	voted, err = engine.HasVoted(ctx, asset, "2")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestSecondVoteAppendsToSameLedger(t *testing.T) {
	engine, reg, store := newTestEngine()
	ctx := context.Background()

	_, err := engine.CastVote(ctx, "wallet-1", "alice", "", 1, models.VoteValueYes)
	require.NoError(t, err)
	_, err = engine.CastVote(ctx, "wallet-1", "alice", "", 2, models.VoteValueNo)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.mints, "second vote must not mint a second ledger")
	assert.Equal(t, 1, reg.updates)

	asset, err := engine.LookupLedger(ctx, "wallet-1")
	require.NoError(t, err)
	metadata, err := store.FetchMetadata(ctx, asset.URI)
	require.NoError(t, err)
	require.Len(t, metadata.Attributes, 2)
	assert.Equal(t, "1", metadata.Attributes[0].ProposalID)
	assert.Equal(t, "2", metadata.Attributes[1].ProposalID)
}

func TestDuplicateVoteRejectedWithoutMutation(t *testing.T) {
	engine, reg, store := newTestEngine()
	ctx := context.Background()

	_, err := engine.CastVote(ctx, "wallet-1", "alice", "", 1, models.VoteValueYes)
	require.NoError(t, err)

	assetBefore, err := engine.LookupLedger(ctx, "wallet-1")
	require.NoError(t, err)
	uploadsBefore := store.uploads

	_, err = engine.CastVote(ctx, "wallet-1", "alice", "", 1, models.VoteValueNo)
	assert.ErrorIs(t, err, ErrDuplicateVote)

	assetAfter, err := engine.LookupLedger(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, assetBefore.URI, assetAfter.URI, "pointer must be untouched")
	assert.Equal(t, uploadsBefore, store.uploads, "no document may be uploaded")
	assert.Equal(t, 0, reg.updates)
}

func TestCastVoteValidation(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.CastVote(ctx, "", "alice", "", 1, models.VoteValueYes)
	assert.ErrorIs(t, err, ErrNoWallet)

	_, err = engine.CastVote(ctx, "wallet-1", "alice", "", 1, "maybe")
	assert.ErrorIs(t, err, ErrInvalidVoteValue)
}

func TestApprovalPercentage(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	pct, err := engine.ApprovalPercentage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(0), pct, "no recorded decisions yields exactly 0")

	for i, value := range []string{models.VoteValueYes, models.VoteValueYes, models.VoteValueYes, models.VoteValueNo} {
		wallet := fmt.Sprintf("wallet-%d", i)
		_, err := engine.CastVote(ctx, wallet, fmt.Sprintf("voter-%d", i), "", 1, value)
		require.NoError(t, err)
	}

	pct, err = engine.ApprovalPercentage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 75.0, pct)

	// voters who skipped the proposal do not count
	pct, err = engine.ApprovalPercentage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, float64(0), pct)
}

func TestVoterLeaderboard(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.CastVote(ctx, "wallet-1", "alice", "alice.png", 1, models.VoteValueYes)
	require.NoError(t, err)
	_, err = engine.CastVote(ctx, "wallet-1", "alice", "alice.png", 2, models.VoteValueYes)
	require.NoError(t, err)
	_, err = engine.CastVote(ctx, "wallet-1", "alice", "alice.png", 3, models.VoteValueNo)
	require.NoError(t, err)

	voters, err := engine.VoterLeaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, voters, 1)

	assert.Equal(t, "alice", voters[0].Username)
	assert.Equal(t, 3, voters[0].TotalVotes)
	assert.Equal(t, 2, voters[0].YesVotes)
	assert.InDelta(t, 66.67, voters[0].ApprovalRating, 0.01)
	assert.Equal(t, "alice.png", voters[0].Image)
}

func TestHasVotedSurfacesFetchFailure(t *testing.T) {
	engine, _, store := newTestEngine()
	ctx := context.Background()

	_, err := engine.CastVote(ctx, "wallet-1", "alice", "", 1, models.VoteValueYes)
	require.NoError(t, err)

	asset, err := engine.LookupLedger(ctx, "wallet-1")
	require.NoError(t, err)
	store.failFetch[asset.URI] = true

	voted, err := engine.HasVoted(ctx, asset, "1")
	assert.False(t, voted)

	var fetchErr *storage.MetadataFetchError
	require.True(t, errors.As(err, &fetchErr), "callers must be able to tell a failed fetch from a clean miss")
}

func TestAggregatesSkipUnreachableVoters(t *testing.T) {
	engine, _, store := newTestEngine()
	ctx := context.Background()

	_, err := engine.CastVote(ctx, "wallet-1", "alice", "", 1, models.VoteValueYes)
	require.NoError(t, err)
	_, err = engine.CastVote(ctx, "wallet-2", "bob", "", 1, models.VoteValueNo)
	require.NoError(t, err)

	broken, err := engine.LookupLedger(ctx, "wallet-2")
	require.NoError(t, err)
	store.failFetch[broken.URI] = true

	pct, err := engine.ApprovalPercentage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pct, "the unreachable voter's no-vote is skipped, not counted")

	voters, err := engine.VoterLeaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, voters, 1)
	assert.Equal(t, "alice", voters[0].Username)
}

func TestUploadRetriedOnTransientFailure(t *testing.T) {
	engine, reg, store := newTestEngine()
	ctx := context.Background()

	store.failUploads = 1

	_, err := engine.CastVote(ctx, "wallet-1", "alice", "", 1, models.VoteValueYes)
	require.NoError(t, err, "a single transient store failure must be retried away")
	assert.Equal(t, 1, reg.mints)
}

func TestDuplicateLedgerTieBreakIsDeterministic(t *testing.T) {
	reg := &fakeRegistry{
		assets: []models.LedgerAsset{
			{Address: "zzz", Owner: "wallet-1", URI: "mem://z"},
			{Address: "aaa", Owner: "wallet-1", URI: "mem://a"},
			{Address: "mmm", Owner: "wallet-2", URI: "mem://m"},
		},
	}
	engine := NewEngine(reg, newFakeStore(), reg)

	asset, err := engine.LookupLedger(context.Background(), "wallet-1")
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Equal(t, "aaa", asset.Address, "smallest address wins regardless of scan order")
}
