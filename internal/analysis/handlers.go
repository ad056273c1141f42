package analysis

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/tokensafe/internal/validation"
)

// Handler provides HTTP endpoints for token analysis
type Handler struct {
	service *Service
}

// NewHandler creates a new analysis handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up analysis endpoints. gate runs before every route
// that triggers an analysis (e.g. the payment middleware).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, gate ...gin.HandlerFunc) {
	r.GET("/chains", h.ListChains)
	r.POST("/analyze", chain(gate, h.AnalyzeToken)...)
	r.POST("/analyze/batch", chain(gate, h.AnalyzeBatch)...)
	r.GET("/tokens/:address/safety", chain(gate, h.GetTokenSafety)...)
}

// chain copies gate so routes never share a backing array.
func chain(gate []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(gate)+1)
	out = append(out, gate...)
	return append(out, h)
}

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	TokenAddress string `json:"token_address"`
	ChainID      int64  `json:"chain_id"`
}

// BatchRequest is the body of POST /v1/analyze/batch.
type BatchRequest struct {
	Tokens []TokenRequest `json:"tokens"`
}

// ListChains returns the chains with a registered RPC endpoint.
// GET /v1/chains
func (h *Handler) ListChains(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"chains": h.service.SupportedChains()})
}

// AnalyzeToken analyzes one token.
// POST /v1/analyze
func (h *Handler) AnalyzeToken(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be JSON with 'token_address' and 'chain_id'",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("token_address", req.TokenAddress),
		validation.MaxLength("token_address", req.TokenAddress, 128),
		validation.Positive("chain_id", req.ChainID),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	h.analyze(c, req.TokenAddress, req.ChainID)
}

// GetTokenSafety analyzes the token in the path.
// GET /v1/tokens/:address/safety?chainId=
func (h *Handler) GetTokenSafety(c *gin.Context) {
	raw := c.Query("chainId")
	if raw == "" {
		raw = c.Query("chain_id")
	}
	chainID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || chainID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_chain_id",
			"message": "Query parameter 'chainId' must be a positive integer",
		})
		return
	}

	h.analyze(c, c.Param("address"), chainID)
}

// AnalyzeBatch analyzes several tokens.
// POST /v1/analyze/batch
func (h *Handler) AnalyzeBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'tokens' array",
		})
		return
	}

	items, err := h.service.AnalyzeBatch(c.Request.Context(), req.Tokens)
	switch {
	case errors.Is(err, ErrEmptyBatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "At least one token is required",
		})
		return
	case errors.Is(err, ErrBatchTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "too_many_tokens",
			"message": "Maximum " + strconv.Itoa(MaxBatchSize) + " tokens per batch request",
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Batch analysis failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": items, "count": len(items)})
}

func (h *Handler) analyze(c *gin.Context, address string, chainID int64) {
	report, err := h.service.Analyze(c.Request.Context(), address, chainID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnsupportedChain):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":            "unsupported_chain",
			"message":          err.Error(),
			"supported_chains": h.service.SupportedChains(),
		})
	case errors.Is(err, ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "token address must be 40 hex characters, with or without 0x prefix",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Analysis failed",
		})
	}
}
