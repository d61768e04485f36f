package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// VoteValueYes and VoteValueNo are the only decisions a ledger records.
const (
	VoteValueYes = "yes"
	VoteValueNo  = "no"
)

// LedgerAsset is one voter's on-chain ledger NFT, scoped to the
// configured collection. The address is fixed at mint time; only the
// metadata URI changes afterwards.
type LedgerAsset struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Frozen  bool   `json:"frozen"`
}

// VoteAttribute is a single recorded decision. On the wire it is a
// one-key JSON object ({"3":"yes"}), matching the metadata documents
// already in the collection.
type VoteAttribute struct {
	ProposalID string
	Value      string
}

func (a VoteAttribute) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{a.ProposalID: a.Value})
}

func (a *VoteAttribute) UnmarshalJSON(data []byte) error {
	var entry map[string]string
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	if len(entry) != 1 {
		return fmt.Errorf("vote attribute must hold exactly one key, got %d", len(entry))
	}
	for proposalID, value := range entry {
		a.ProposalID = proposalID
		a.Value = value
	}
	return nil
}

// AttributeList is the ordered vote history of one ledger. Append-only:
// the engine never rewrites an existing entry.
type AttributeList []VoteAttribute

// FindByProposal returns the recorded attribute for a proposal, or nil
// if the ledger holds no decision for it.
func (l AttributeList) FindByProposal(proposalID string) *VoteAttribute {
	for i := range l {
		if l[i].ProposalID == proposalID {
			return &l[i]
		}
	}
	return nil
}

// MetadataFile references the voter avatar inside the document's
// properties block.
type MetadataFile struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

type MetadataProperties struct {
	Files    []MetadataFile `json:"files"`
	Category *string        `json:"category"`
}

// VoteMetadata is the off-chain JSON document a ledger asset points at.
type VoteMetadata struct {
	Name       string             `json:"name"`
	Image      string             `json:"image"`
	Attributes AttributeList      `json:"attributes"`
	Properties MetadataProperties `json:"properties"`
}

// NewVoteMetadata builds a first-vote document for a fresh ledger.
func NewVoteMetadata(username, avatar, proposalID, voteValue string) *VoteMetadata {
	return &VoteMetadata{
		Name:  username,
		Image: avatar,
		Attributes: AttributeList{
			{ProposalID: proposalID, Value: voteValue},
		},
		Properties: MetadataProperties{
			Files: []MetadataFile{
				{URI: avatar, Type: "image/png"},
			},
			Category: nil,
		},
	}
}

// VoterDetail is the per-owner aggregate computed by the leaderboard.
// Derived from a collection snapshot, never stored.
type VoterDetail struct {
	Username       string  `json:"username"`
	TotalVotes     int     `json:"totalVotes"`
	YesVotes       int     `json:"yesVotes"`
	ApprovalRating float64 `json:"approvalRating"`
	Image          string  `json:"image,omitempty"`
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CastVoteRequest struct {
	ProposalID  int    `json:"proposal_id" binding:"required"`
	VoteValue   string `json:"vote_value" binding:"required"`
	VoterWallet string `json:"voter_wallet" binding:"required"`
	Username    string `json:"username" binding:"required"`
	Avatar      string `json:"avatar"`
}

type CastVoteResponse struct {
	Signature string `json:"signature"`
	Explorer  string `json:"explorer_url"`
}

// Proposal is a row in the proposals table. Voting itself never touches
// the table; it only gives the UI something to enumerate.
type Proposal struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"status" json:"status"`
	Creator     string    `db:"creator" json:"creator"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CreateAssetArgs is the borsh payload for the core create instruction.
type CreateAssetArgs struct {
	DataState uint8  `borsh:"data_state"`
	Name      string `borsh:"name"`
	URI       string `borsh:"uri"`
}

// UpdateAssetArgs is the borsh payload for the core update instruction.
// Nil fields serialize as borsh None and leave the value untouched.
type UpdateAssetArgs struct {
	NewName *string `borsh:"new_name"`
	NewURI  *string `borsh:"new_uri"`
}
