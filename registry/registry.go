package registry

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/near/borsh-go"

	"vote-ledger-backend/models"
)

// CoreProgramID is the Metaplex Core program the ledger assets live in.
var CoreProgramID = solana.MustPublicKeyFromBase58("CoREENxT6tW1HoK8ypY1SxRMZTcVPm7R94rH4PZNhX7d")

const (
	createAssetDiscriminator = uint8(0)
	updateAssetDiscriminator = uint8(15)

	// AssetV1 account layout offsets: key byte, owner pubkey,
	// update-authority tag, update-authority address.
	assetOwnerOffset         = 1
	updateAuthorityTagOffset = 33
	updateAuthorityOffset    = 34

	assetKeyV1                = uint8(1)
	updateAuthorityCollection = uint8(2)
)

// MintError means the create transaction was rejected or never landed.
type MintError struct{ Err error }

func (e *MintError) Error() string { return fmt.Sprintf("asset mint failed: %v", e.Err) }
func (e *MintError) Unwrap() error { return e.Err }

// UpdateError means the metadata-pointer update transaction failed. The
// asset is still pointing at its previous URI.
type UpdateError struct {
	Asset string
	Err   error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("asset update failed for %s: %v", e.Asset, e.Err)
}
func (e *UpdateError) Unwrap() error { return e.Err }

// AuthError means the collection authority key is missing or invalid.
type AuthError struct{ Err error }

func (e *AuthError) Error() string { return fmt.Sprintf("collection authority error: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// Client wraps the on-chain asset registry: minting ledger assets,
// repointing their metadata, and enumerating the collection. The
// authority key lives here and only here; it is loaded from the
// environment at startup and never served to callers.
type Client struct {
	rpc        *rpc.Client
	collection solana.PublicKey
	authority  solana.PrivateKey
}

func NewClient(rpcURL, collectionAddress, authoritySecretKey string) (*Client, error) {
	collection, err := solana.PublicKeyFromBase58(collectionAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid collection address: %w", err)
	}

	authority, err := solana.PrivateKeyFromBase58(authoritySecretKey)
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	return &Client{
		rpc:        rpc.New(rpcURL),
		collection: collection,
		authority:  authority,
	}, nil
}

// Collection returns the collection address this client is scoped to.
func (c *Client) Collection() string {
	return c.collection.String()
}

// permanentFreezePluginTail is the borsh-encoded plugin list that makes
// a minted asset soulbound: Some([PermanentFreezeDelegate{frozen:true}
// with the default (owner-managed) authority]).
func permanentFreezePluginTail() []byte {
	return []byte{
		1,          // Option tag: Some
		1, 0, 0, 0, // Vec length: 1
		11, // plugin type: PermanentFreezeDelegate
		1,  // frozen: true
		0,  // plugin authority: None (permanently frozen)
	}
}

// Mint creates a new frozen ledger asset in the collection, owned by
// the voter's wallet and pointing at the given metadata URI.
func (c *Client) Mint(ctx context.Context, owner, name, metadataURI string) (string, string, error) {
	ownerPubKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return "", "", &MintError{Err: fmt.Errorf("invalid owner address: %w", err)}
	}

	assetKeypair := solana.NewWallet()
	authorityPubKey := c.authority.PublicKey()

	args := models.CreateAssetArgs{
		DataState: 0, // account state
		Name:      name,
		URI:       metadataURI,
	}
	data, err := borsh.Serialize(args)
	if err != nil {
		return "", "", &MintError{Err: fmt.Errorf("failed to serialize create args: %w", err)}
	}

	instructionData := append([]byte{createAssetDiscriminator}, data...)
	instructionData = append(instructionData, permanentFreezePluginTail()...)

	accounts := solana.AccountMetaSlice{
		{PublicKey: assetKeypair.PublicKey(), IsSigner: true, IsWritable: true},
		{PublicKey: c.collection, IsSigner: false, IsWritable: true},
		{PublicKey: authorityPubKey, IsSigner: true, IsWritable: true},
		{PublicKey: authorityPubKey, IsSigner: true, IsWritable: true}, // payer
		{PublicKey: ownerPubKey, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}

	instruction := solana.NewInstruction(CoreProgramID, accounts, instructionData)

	sig, err := c.sendInstruction(ctx, instruction, assetKeypair.PrivateKey)
	if err != nil {
		return "", "", &MintError{Err: err}
	}

	log.Printf("Minted ledger asset %s for owner %s. Signature: %s",
		assetKeypair.PublicKey().String(), owner, sig.String())

	return assetKeypair.PublicKey().String(), sig.String(), nil
}

// UpdateMetadataURI repoints an existing ledger asset at a new metadata
// document. Name and owner are left untouched.
func (c *Client) UpdateMetadataURI(ctx context.Context, assetAddress, newURI string) (string, error) {
	assetPubKey, err := solana.PublicKeyFromBase58(assetAddress)
	if err != nil {
		return "", &UpdateError{Asset: assetAddress, Err: fmt.Errorf("invalid asset address: %w", err)}
	}

	authorityPubKey := c.authority.PublicKey()

	args := models.UpdateAssetArgs{NewURI: &newURI}
	data, err := borsh.Serialize(args)
	if err != nil {
		return "", &UpdateError{Asset: assetAddress, Err: fmt.Errorf("failed to serialize update args: %w", err)}
	}

	instructionData := append([]byte{updateAssetDiscriminator}, data...)

	accounts := solana.AccountMetaSlice{
		{PublicKey: assetPubKey, IsSigner: false, IsWritable: true},
		{PublicKey: c.collection, IsSigner: false, IsWritable: true},
		{PublicKey: authorityPubKey, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}

	instruction := solana.NewInstruction(CoreProgramID, accounts, instructionData)

	sig, err := c.sendInstruction(ctx, instruction, nil)
	if err != nil {
		return "", &UpdateError{Asset: assetAddress, Err: err}
	}

	log.Printf("Updated ledger asset %s metadata. Signature: %s", assetAddress, sig.String())

	return sig.String(), nil
}

func (c *Client) sendInstruction(ctx context.Context, instruction solana.Instruction, extraSigner solana.PrivateKey) (solana.Signature, error) {
	authorityPubKey := c.authority.PublicKey()

	blockhashResp, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to fetch recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhashResp.Value.Blockhash,
		solana.TransactionPayer(authorityPubKey),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if authorityPubKey.Equals(key) {
			return &c.authority
		}
		if extraSigner != nil && extraSigner.PublicKey().Equals(key) {
			return &extraSigner
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return sig, nil
}

// ListByCollection enumerates every ledger asset in the collection.
// One call per scan; the throttle package decides how often scans run.
func (c *Client) ListByCollection(ctx context.Context) ([]models.LedgerAsset, error) {
	resp, err := c.rpc.GetProgramAccountsWithOpts(ctx, CoreProgramID, &rpc.GetProgramAccountsOpts{
		Filters: []rpc.RPCFilter{
			{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: updateAuthorityTagOffset,
					Bytes:  solana.Base58(append([]byte{updateAuthorityCollection}, c.collection.Bytes()...)),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collection assets: %w", err)
	}

	assets := make([]models.LedgerAsset, 0, len(resp))
	for _, account := range resp {
		asset, err := DecodeAssetAccount(account.Pubkey.String(), account.Account.Data.GetBinary())
		if err != nil {
			log.Printf("Skipping undecodable asset account %s: %v", account.Pubkey.String(), err)
			continue
		}
		assets = append(assets, asset)
	}

	return assets, nil
}

// DecodeAssetAccount parses the AssetV1 account layout: key byte,
// owner, update authority, then borsh-encoded name and uri strings.
// Trailing bytes hold the plugin registry; every asset this service
// mints carries the permanent-freeze plugin there.
func DecodeAssetAccount(address string, data []byte) (models.LedgerAsset, error) {
	if len(data) < updateAuthorityOffset {
		return models.LedgerAsset{}, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if data[0] != assetKeyV1 {
		return models.LedgerAsset{}, fmt.Errorf("not an asset account (key %d)", data[0])
	}

	owner := solana.PublicKeyFromBytes(data[assetOwnerOffset : assetOwnerOffset+32])

	pos := updateAuthorityTagOffset
	authorityTag := data[pos]
	pos++
	if authorityTag != 0 {
		// Address or Collection variant carries a pubkey
		if len(data) < pos+32 {
			return models.LedgerAsset{}, fmt.Errorf("truncated update authority")
		}
		pos += 32
	}

	name, pos, err := readBorshString(data, pos)
	if err != nil {
		return models.LedgerAsset{}, fmt.Errorf("failed to read asset name: %w", err)
	}
	uri, pos, err := readBorshString(data, pos)
	if err != nil {
		return models.LedgerAsset{}, fmt.Errorf("failed to read asset uri: %w", err)
	}

	return models.LedgerAsset{
		Address: address,
		Owner:   owner.String(),
		Name:    name,
		URI:     uri,
		Frozen:  pos < len(data),
	}, nil
}

func readBorshString(data []byte, pos int) (string, int, error) {
	if len(data) < pos+4 {
		return "", pos, fmt.Errorf("truncated string length at offset %d", pos)
	}
	length := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if len(data) < pos+length {
		return "", pos, fmt.Errorf("truncated string body at offset %d", pos)
	}
	return string(data[pos : pos+length]), pos + length, nil
}
