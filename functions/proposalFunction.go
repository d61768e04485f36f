package functions

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"vote-ledger-backend/models"
)

// OpenDatabase connects to the proposals database. The vote ledger
// itself lives on-chain; the table only holds what the UI enumerates.
func OpenDatabase(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	log.Println("Database connection established successfully")
	return db, nil
}

type createProposalRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Creator     string `json:"creator" binding:"required"`
}

// CreateProposal registers a new proposal for the widget to list.
func (h *Handler) CreateProposal(c *gin.Context) {
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   "Invalid request: " + err.Error(),
		})
		return
	}

	if len(req.Name) > 200 {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   "Proposal name cannot be longer than 200 characters",
		})
		return
	}

	proposal := models.Proposal{
		Name:        req.Name,
		Description: req.Description,
		Status:      "Active",
		Creator:     req.Creator,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO proposals (name, description, status, creator, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := h.db.QueryRow(query,
		proposal.Name, proposal.Description, proposal.Status,
		proposal.Creator, proposal.CreatedAt,
	).Scan(&proposal.ID)
	if err != nil {
		log.Printf("Failed to save proposal: %v", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "Failed to save proposal to database",
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    proposal,
	})
}

// ListProposals returns every proposal, newest first.
func (h *Handler) ListProposals(c *gin.Context) {
	query := `SELECT id, name, description, status, creator, created_at FROM proposals ORDER BY id DESC`
	rows, err := h.db.Query(query)
	if err != nil {
		log.Printf("Failed to fetch proposals: %v", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "Failed to retrieve proposals",
		})
		return
	}
	defer rows.Close()

	var proposals []models.Proposal
	for rows.Next() {
		var proposal models.Proposal
		if err := rows.Scan(
			&proposal.ID,
			&proposal.Name,
			&proposal.Description,
			&proposal.Status,
			&proposal.Creator,
			&proposal.CreatedAt,
		); err != nil {
			log.Printf("Failed to scan proposal row: %v", err)
			continue
		}
		proposals = append(proposals, proposal)
	}

	if err = rows.Err(); err != nil {
		log.Printf("Error iterating over proposal rows: %v", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "Failed to process proposals",
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    proposals,
	})
}
