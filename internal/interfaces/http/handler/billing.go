package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appbilling "github.com/aistudio/backend/internal/application/billing"
	"github.com/aistudio/backend/internal/domain/billing"
	"github.com/aistudio/backend/internal/interfaces/http/dto"
)

// BillingHandler exposes policy administration and account operations.
type BillingHandler struct {
	BaseHandler
	policies *appbilling.PolicyService
	billing  *appbilling.Service
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(policies *appbilling.PolicyService, billingService *appbilling.Service) *BillingHandler {
	return &BillingHandler{policies: policies, billing: billingService}
}

// RegisterRoutes registers the billing routes
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/billing")
	{
		group.GET("/balance", h.Balance)
		group.GET("/ledger", h.Ledger)
		group.POST("/recharge", h.Recharge)

		policies := group.Group("/policies")
		{
			policies.POST("", h.CreatePolicy)
			policies.GET("", h.ListPolicies)
			policies.GET("/:id", h.GetPolicy)
			policies.PUT("/:id", h.UpdatePolicy)
		}
	}
}

// PolicyRequest carries the fields for creating or updating a policy.
type PolicyRequest struct {
	Name       string `json:"name" binding:"required"`
	WorkflowID string `json:"workflow_id"`
	UnitPrice  string `json:"unit_price" binding:"required"`
	Unit       string `json:"unit" binding:"required"`
	BatchSize  int    `json:"batch_size"`
	Enabled    *bool  `json:"enabled"`
}

// PolicyResponse is the API shape of a billing policy
type PolicyResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	WorkflowID string `json:"workflow_id"`
	UnitPrice  string `json:"unit_price"`
	Unit       string `json:"unit"`
	BatchSize  int    `json:"batch_size"`
	Enabled    bool   `json:"enabled"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toPolicyResponse(p *billing.BillingPolicy) PolicyResponse {
	return PolicyResponse{
		ID:         p.ID.String(),
		Name:       p.Name,
		WorkflowID: p.WorkflowID,
		UnitPrice:  p.UnitPrice.String(),
		Unit:       string(p.Unit),
		BatchSize:  p.BatchSize,
		Enabled:    p.Enabled,
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  p.UpdatedAt.Format(time.RFC3339),
	}
}

// CreatePolicy binds a new metering policy to a workflow
// POST /api/v1/billing/policies
func (h *BillingHandler) CreatePolicy(c *gin.Context) {
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.WorkflowID == "" {
		h.BadRequest(c, "workflow_id is required")
		return
	}

	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		h.BadRequest(c, "Invalid unit price")
		return
	}

	policy, err := h.policies.Create(c.Request.Context(), appbilling.CreatePolicyInput{
		Name:       req.Name,
		WorkflowID: req.WorkflowID,
		UnitPrice:  unitPrice,
		Unit:       billing.MeteringUnit(req.Unit),
		BatchSize:  req.BatchSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toPolicyResponse(policy))
}

// UpdatePolicy changes an existing policy's metering rule
// PUT /api/v1/billing/policies/:id
func (h *BillingHandler) UpdatePolicy(c *gin.Context) {
	var idReq dto.IDRequest
	if err := c.ShouldBindUri(&idReq); err != nil {
		h.BadRequest(c, "Invalid policy ID")
		return
	}
	id, err := uuid.Parse(idReq.ID)
	if err != nil {
		h.BadRequest(c, "Invalid policy ID")
		return
	}

	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		h.BadRequest(c, "Invalid unit price")
		return
	}

	policy, err := h.policies.Update(c.Request.Context(), id, appbilling.UpdatePolicyInput{
		Name:      req.Name,
		UnitPrice: unitPrice,
		Unit:      billing.MeteringUnit(req.Unit),
		BatchSize: req.BatchSize,
		Enabled:   req.Enabled,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toPolicyResponse(policy))
}

// GetPolicy returns one policy
// GET /api/v1/billing/policies/:id
func (h *BillingHandler) GetPolicy(c *gin.Context) {
	var idReq dto.IDRequest
	if err := c.ShouldBindUri(&idReq); err != nil {
		h.BadRequest(c, "Invalid policy ID")
		return
	}
	id, err := uuid.Parse(idReq.ID)
	if err != nil {
		h.BadRequest(c, "Invalid policy ID")
		return
	}

	policy, err := h.policies.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toPolicyResponse(policy))
}

// ListPolicies returns all policies
// GET /api/v1/billing/policies
func (h *BillingHandler) ListPolicies(c *gin.Context) {
	policies, err := h.policies.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]PolicyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, toPolicyResponse(p))
	}
	h.Success(c, out)
}

// BalanceResponse reports a user's current balance
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}

// Balance returns the authenticated user's balance
// GET /api/v1/billing/balance
func (h *BillingHandler) Balance(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	balance, err := h.billing.Balance(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, BalanceResponse{UserID: userID.String(), Balance: balance.String()})
}

// LedgerEntryResponse is the API shape of one ledger entry
type LedgerEntryResponse struct {
	ID          string `json:"id"`
	Delta       string `json:"delta"`
	Type        string `json:"type"`
	WorkflowID  string `json:"workflow_id,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Ledger returns one page of the authenticated user's ledger, newest first
// GET /api/v1/billing/ledger
func (h *BillingHandler) Ledger(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return
	}
	listReq.Normalize()

	entries, total, err := h.billing.LedgerEntries(c.Request.Context(), userID, listReq.Page, listReq.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{
			ID:          e.ID.String(),
			Delta:       e.Delta.String(),
			Type:        string(e.Type),
			WorkflowID:  e.WorkflowID,
			Description: e.Description,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	h.SuccessWithMeta(c, out, total, listReq.Page, listReq.PageSize)
}

// RechargeRequest credits a user's balance
type RechargeRequest struct {
	UserID      string `json:"user_id" binding:"required,uuid"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// Recharge credits a user's balance and records the matching ledger entry
// POST /api/v1/billing/recharge
func (h *BillingHandler) Recharge(c *gin.Context) {
	var req RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.BadRequest(c, "Invalid amount")
		return
	}

	description := req.Description
	if description == "" {
		description = "manual recharge"
	}

	entry, err := h.billing.Recharge(c.Request.Context(), userID, amount, description)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, LedgerEntryResponse{
		ID:          entry.ID.String(),
		Delta:       entry.Delta.String(),
		Type:        string(entry.Type),
		Description: entry.Description,
		CreatedAt:   entry.CreatedAt.Format(time.RFC3339),
	})
}
