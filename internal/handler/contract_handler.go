package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-engine/internal/dto"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/pkg/response"
)

type contractService interface {
	Get(ctx context.Context, userID string, actor *models.JWTClaims) (*models.ContractView, error)
	Sign(ctx context.Context, userID string, identity models.ContractIdentity, actor *models.JWTClaims) (*models.ContractView, error)
	AdminSign(ctx context.Context, userID string, autoRenewal bool, actor *models.JWTClaims) (*models.ContractView, error)
	CanCancel(ctx context.Context, userID string, actor *models.JWTClaims) (*models.CancelEligibility, error)
	Cancel(ctx context.Context, userID, reason string, isAdminCancellation bool, actor *models.JWTClaims) (*models.ContractView, error)
	Renew(ctx context.Context, userID string, actor *models.JWTClaims) (*models.ContractView, error)
}

// ContractHandler exposes the contract lifecycle.
type ContractHandler struct {
	service contractService
}

// NewContractHandler builds a contract handler.
func NewContractHandler(service contractService) *ContractHandler {
	return &ContractHandler{service: service}
}

// Get godoc
// @Summary Get a user's contract status
// @Tags Contracts
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /contract/{userId} [get]
func (h *ContractHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("userId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Sign godoc
// @Summary Sign the contract as the student
// @Tags Contracts
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param payload body dto.SignContractRequest true "Identity payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contract/sign/{userId} [post]
func (h *ContractHandler) Sign(c *gin.Context) {
	var req dto.SignContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid signature payload"))
		return
	}
	identity := req.Identity(c.ClientIP(), c.Request.UserAgent())
	view, err := h.service.Sign(c.Request.Context(), c.Param("userId"), identity, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// AdminSign godoc
// @Summary Countersign a student-signed contract
// @Tags Contracts
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param payload body dto.AdminSignRequest false "Countersign payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /contract/admin-sign/{userId} [post]
func (h *ContractHandler) AdminSign(c *gin.Context) {
	var req dto.AdminSignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err, "invalid countersign payload"))
			return
		}
	}
	view, err := h.service.AdminSign(c.Request.Context(), c.Param("userId"), req.AutoRenewal, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// CanCancel godoc
// @Summary Check whether a contract may be cancelled now
// @Tags Contracts
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /contract/cancel/{userId} [get]
func (h *ContractHandler) CanCancel(c *gin.Context) {
	eligibility, err := h.service.CanCancel(c.Request.Context(), c.Param("userId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eligibility, nil)
}

// Cancel godoc
// @Summary Cancel a contract
// @Tags Contracts
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param payload body dto.CancelContractRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contract/cancel/{userId} [post]
func (h *ContractHandler) Cancel(c *gin.Context) {
	var req dto.CancelContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid cancellation payload"))
		return
	}
	view, err := h.service.Cancel(c.Request.Context(), c.Param("userId"), req.Reason, req.IsAdminCancellation, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Renew godoc
// @Summary Renew a cancelled or expired contract
// @Tags Contracts
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /contract/renew/{userId} [post]
func (h *ContractHandler) Renew(c *gin.Context) {
	view, err := h.service.Renew(c.Request.Context(), c.Param("userId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
