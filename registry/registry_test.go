package registry

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendBorshString(data []byte, s string) []byte {
	data = binary.LittleEndian.AppendUint32(data, uint32(len(s)))
	return append(data, s...)
}

func buildAssetAccount(owner solana.PublicKey, collection solana.PublicKey, name, uri string, pluginTail []byte) []byte {
	data := []byte{assetKeyV1}
	data = append(data, owner.Bytes()...)
	data = append(data, updateAuthorityCollection)
	data = append(data, collection.Bytes()...)
	data = appendBorshString(data, name)
	data = appendBorshString(data, uri)
	return append(data, pluginTail...)
}

func TestDecodeAssetAccount(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()

	data := buildAssetAccount(owner, collection, "alice", "ipfs://cid1", permanentFreezePluginTail())

	asset, err := DecodeAssetAccount("addr1", data)
	require.NoError(t, err)

	assert.Equal(t, "addr1", asset.Address)
	assert.Equal(t, owner.String(), asset.Owner)
	assert.Equal(t, "alice", asset.Name)
	assert.Equal(t, "ipfs://cid1", asset.URI)
	assert.True(t, asset.Frozen, "plugin tail marks the asset frozen")
}

func TestDecodeAssetAccountWithoutPlugins(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()

	data := buildAssetAccount(owner, collection, "bob", "ipfs://cid2", nil)

	asset, err := DecodeAssetAccount("addr2", data)
	require.NoError(t, err)
	assert.False(t, asset.Frozen)
}

func TestDecodeAssetAccountRejectsBadData(t *testing.T) {
	_, err := DecodeAssetAccount("short", []byte{assetKeyV1, 0, 0})
	assert.Error(t, err)

	owner := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()
	data := buildAssetAccount(owner, collection, "alice", "ipfs://cid1", nil)
	data[0] = 9 // not an asset account key
	_, err = DecodeAssetAccount("addr", data)
	assert.Error(t, err)

	// truncated uri body
	data[0] = assetKeyV1
	_, err = DecodeAssetAccount("addr", data[:len(data)-4])
	assert.Error(t, err)
}
