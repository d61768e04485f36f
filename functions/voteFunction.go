package functions

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"vote-ledger-backend/ledger"
	"vote-ledger-backend/models"
	"vote-ledger-backend/storage"
)

// Handler carries the wired collaborators for every route. Constructed
// once in main; no package globals.
type Handler struct {
	engine *ledger.Engine
	store  *storage.Client
	db     *sql.DB
}

func NewHandler(engine *ledger.Engine, store *storage.Client, db *sql.DB) *Handler {
	return &Handler{
		engine: engine,
		store:  store,
		db:     db,
	}
}

func explorerURL(signature string) string {
	return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=devnet", signature)
}

// CastVote records one decision for the authenticated wallet. First
// vote mints the voter's soulbound ledger asset; later votes append to
// its metadata document.
func (h *Handler) CastVote(c *gin.Context) {
	var req models.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   "Invalid request: " + err.Error(),
		})
		return
	}

	if _, err := solana.PublicKeyFromBase58(req.VoterWallet); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   "Invalid voter wallet address",
		})
		return
	}

	signature, err := h.engine.CastVote(c.Request.Context(),
		req.VoterWallet, req.Username, req.Avatar, req.ProposalID, req.VoteValue)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateVote):
			c.JSON(http.StatusConflict, models.APIResponse{
				Success: false,
				Error:   "You have already voted on this proposal.",
			})
		case errors.Is(err, ledger.ErrNoWallet), errors.Is(err, ledger.ErrInvalidVoteValue):
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
		default:
			log.Printf("Failed to cast vote for %s: %v", req.VoterWallet, err)
			c.JSON(http.StatusInternalServerError, models.APIResponse{
				Success: false,
				Error:   "Failed to record vote",
			})
		}
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: models.CastVoteResponse{
			Signature: signature,
			Explorer:  explorerURL(signature),
		},
	})
}

// GetProposalApproval returns the approval percentage for one proposal
// across every ledger in the collection.
func (h *Handler) GetProposalApproval(c *gin.Context) {
	proposalID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   "Invalid proposal id",
		})
		return
	}

	percentage, err := h.engine.ApprovalPercentage(c.Request.Context(), proposalID)
	if err != nil {
		log.Printf("Failed to compute approval for proposal %d: %v", proposalID, err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "Failed to compute approval percentage",
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"proposal_id":         proposalID,
			"approval_percentage": percentage,
		},
	})
}

// GetVoters returns the per-voter aggregate over the whole collection.
func (h *Handler) GetVoters(c *gin.Context) {
	voters, err := h.engine.VoterLeaderboard(c.Request.Context())
	if err != nil {
		log.Printf("Failed to build voter leaderboard: %v", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "Failed to retrieve voters",
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    map[string]interface{}{"voters": voters},
	})
}

// UploadMetadata forwards an arbitrary JSON document to the content
// store. Response shape is fixed by the widget: {"url": ...} on
// success, 500 with {"error": ...} otherwise.
func (h *Handler) UploadMetadata(c *gin.Context) {
	var doc interface{}
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	url, err := h.store.Upload(c.Request.Context(), doc)
	if err != nil {
		log.Printf("Error uploading JSON data: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error uploading JSON data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
