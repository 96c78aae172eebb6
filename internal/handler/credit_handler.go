package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-engine/internal/dto"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/service"
	"github.com/noah-isme/lesson-engine/pkg/response"
)

type creditService interface {
	Grant(ctx context.Context, req models.GrantCreditRequest, actor *models.JWTClaims) (*models.CreditTransaction, error)
	Consume(ctx context.Context, req models.ConsumeCreditRequest, actor *models.JWTClaims) (*models.CreditTransaction, error)
	GetBalance(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.CreditBalance, error)
	History(ctx context.Context, studentID string, filter models.CreditHistoryFilter, actor *models.JWTClaims) ([]models.CreditTransaction, error)
	ExportHistory(ctx context.Context, studentID, format string, filter models.CreditHistoryFilter, actor *models.JWTClaims) (*service.ExportFile, error)
}

// CreditHandler exposes the credit ledger.
type CreditHandler struct {
	service creditService
}

// NewCreditHandler builds a credit handler.
func NewCreditHandler(service creditService) *CreditHandler {
	return &CreditHandler{service: service}
}

// Grant godoc
// @Summary Grant a credit to a student
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body models.GrantCreditRequest true "Grant payload"
// @Success 201 {object} response.Envelope
// @Router /admin/credits/grant [post]
func (h *CreditHandler) Grant(c *gin.Context) {
	var req models.GrantCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid credit payload"))
		return
	}
	tx, err := h.service.Grant(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tx)
}

// Consume godoc
// @Summary Mark a credit as used
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body models.ConsumeCreditRequest true "Consume payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/credits/consume [post]
func (h *CreditHandler) Consume(c *gin.Context) {
	var req models.ConsumeCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid consume payload"))
		return
	}
	tx, err := h.service.Consume(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// Balance godoc
// @Summary Get a student's credit balance
// @Tags Credits
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /admin/credits/balance/{studentId} [get]
func (h *CreditHandler) Balance(c *gin.Context) {
	balance, err := h.service.GetBalance(c.Request.Context(), c.Param("studentId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// History godoc
// @Summary List a student's credit ledger
// @Tags Credits
// @Produce json
// @Param studentId path string true "Student ID"
// @Param type query string false "Credit type"
// @Param action query string false "GRANTED or USED"
// @Param from query string false "Lower bound"
// @Param to query string false "Upper bound"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /admin/credits/history/{studentId} [get]
func (h *CreditHandler) History(c *gin.Context) {
	filter, _, err := historyFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	txs, err := h.service.History(c.Request.Context(), c.Param("studentId"), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txs, map[string]interface{}{"total": len(txs)})
}

// Export godoc
// @Summary Download a student's credit statement
// @Tags Credits
// @Produce text/csv
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /admin/credits/history/{studentId}/export [get]
func (h *CreditHandler) Export(c *gin.Context) {
	filter, format, err := historyFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.ExportHistory(c.Request.Context(), c.Param("studentId"), format, filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.ContentType, file.Filename, file.Body)
}

func historyFilter(c *gin.Context) (models.CreditHistoryFilter, string, error) {
	var query dto.CreditHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return models.CreditHistoryFilter{}, "", invalidPayload(err, "invalid history query")
	}
	filter := models.CreditHistoryFilter{Limit: query.Limit}
	if query.Type != "" {
		t := models.CreditType(strings.ToUpper(query.Type))
		filter.Type = &t
	}
	if query.Action != "" {
		a := models.CreditAction(strings.ToUpper(query.Action))
		filter.Action = &a
	}
	from, err := optionalTime(c, "from")
	if err != nil {
		return filter, "", err
	}
	to, err := optionalTime(c, "to")
	if err != nil {
		return filter, "", err
	}
	filter.From, filter.To = from, to
	return filter, query.Format, nil
}
