package contract

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/chain"
)

// Handler handles HTTP requests for contract operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new contract handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the read-only routes and the generic command route.
// Routes that change contract state go through protect, e.g. an auth and rate limit chain.
func (h *Handler) RegisterRoutes(router gin.IRouter, protect ...gin.HandlerFunc) {
	command := make([]gin.HandlerFunc, 0, len(protect)+1)
	command = append(command, protect...)
	router.POST("/command", append(command, h.runCommand)...)

	api := router.Group("/api")
	{
		api.GET("/organizations", h.listOrganizations)
		api.GET("/organizations/:address", h.getOrganization)
		api.GET("/claims", h.listClaims)
		api.GET("/claims/:id", h.getClaim)
		api.GET("/lend-requests", h.listLendRequests)
		api.GET("/config", h.getConfig)
		api.GET("/carbon-credits/total", h.getTotalCarbonCredits)
	}

	tx := router.Group("/api", protect...)
	{
		tx.POST("/addClaim", h.addClaim)
		tx.PUT("/organizations/name", h.updateOrganizationName)
		tx.POST("/organizations/emissions", h.addEmission)
		tx.POST("/claims/:id/vote", h.castVote)
		tx.POST("/claims/:id/finalize", h.finalizeVoting)
		tx.POST("/lend-requests", h.requestTokens)
		tx.POST("/lend-requests/:id/respond", h.respondLendRequest)
		tx.POST("/lend-requests/verify", h.verifyEligibility)
		tx.POST("/repay", h.repayTokens)
	}
}

// runCommand handles POST /command
func (h *Handler) runCommand(c *gin.Context) {
	var req CommandRequest
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.RunCommand(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "output": string(out)})
}

// listOrganizations handles GET /api/organizations
func (h *Handler) listOrganizations(c *gin.Context) {
	opts, ok := h.listOptions(c)
	if !ok {
		return
	}

	orgs, err := h.service.ListOrganizations(c.Request.Context(), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "organizations": orgs})
}

// getOrganization handles GET /api/organizations/:address
func (h *Handler) getOrganization(c *gin.Context) {
	org, err := h.service.GetOrganization(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "organization": org})
}

// listClaims handles GET /api/claims
func (h *Handler) listClaims(c *gin.Context) {
	opts, ok := h.listOptions(c)
	if !ok {
		return
	}

	claims, err := h.service.ListClaims(c.Request.Context(), ClaimStatus(c.Query("status")), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "claims": claims})
}

// getClaim handles GET /api/claims/:id
func (h *Handler) getClaim(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	claim, err := h.service.GetClaim(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "claim": claim})
}

// addClaim handles POST /api/addClaim
func (h *Handler) addClaim(c *gin.Context) {
	var req CreateClaimRequest
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.CreateClaim(c.Request.Context(), req)
	h.respondTx(c, out, err)
}

// updateOrganizationName handles PUT /api/organizations/name
func (h *Handler) updateOrganizationName(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.UpdateOrganizationName(c.Request.Context(), req.Name)
	h.respondTx(c, out, err)
}

// addEmission handles POST /api/organizations/emissions
func (h *Handler) addEmission(c *gin.Context) {
	var req struct {
		Emissions Uint128 `json:"emissions"`
	}
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.AddEmission(c.Request.Context(), req.Emissions)
	h.respondTx(c, out, err)
}

// castVote handles POST /api/claims/:id/vote
func (h *Handler) castVote(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req struct {
		Vote VoteOption `json:"vote"`
	}
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.CastVote(c.Request.Context(), id, req.Vote)
	h.respondTx(c, out, err)
}

// finalizeVoting handles POST /api/claims/:id/finalize
func (h *Handler) finalizeVoting(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	out, err := h.service.FinalizeVoting(c.Request.Context(), id)
	h.respondTx(c, out, err)
}

// listLendRequests handles GET /api/lend-requests?user=
func (h *Handler) listLendRequests(c *gin.Context) {
	opts, ok := h.listOptions(c)
	if !ok {
		return
	}
	user := c.Query("user")
	if user == "" {
		h.respondError(c, invalidf("Missing required fields: user"))
		return
	}

	requests, err := h.service.ListLendRequests(c.Request.Context(), user, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "lend_requests": requests})
}

// requestTokens handles POST /api/lend-requests
func (h *Handler) requestTokens(c *gin.Context) {
	var req transferMsg
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.RequestTokens(c.Request.Context(), req.Lender, req.Amount)
	h.respondTx(c, out, err)
}

// respondLendRequest handles POST /api/lend-requests/:id/respond
func (h *Handler) respondLendRequest(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req struct {
		Response LendResponse `json:"response"`
	}
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.RespondLendRequest(c.Request.Context(), id, req.Response)
	h.respondTx(c, out, err)
}

// verifyEligibility handles POST /api/lend-requests/verify
func (h *Handler) verifyEligibility(c *gin.Context) {
	var req struct {
		Borrower string  `json:"borrower"`
		Amount   Uint128 `json:"amount"`
		Lender   string  `json:"lender"`
	}
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.VerifyEligibility(c.Request.Context(), req.Borrower, req.Amount, req.Lender)
	h.respondTx(c, out, err)
}

// repayTokens handles POST /api/repay
func (h *Handler) repayTokens(c *gin.Context) {
	var req transferMsg
	if !h.bind(c, &req) {
		return
	}

	out, err := h.service.RepayTokens(c.Request.Context(), req.Lender, req.Amount)
	h.respondTx(c, out, err)
}

// getConfig handles GET /api/config
func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.service.GetConfig(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "config": cfg})
}

// getTotalCarbonCredits handles GET /api/carbon-credits/total
func (h *Handler) getTotalCarbonCredits(c *gin.Context) {
	total, err := h.service.GetTotalCarbonCredits(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "total": total})
}

// =====================================================
// Helper Methods
// =====================================================

func (h *Handler) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) idParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) listOptions(c *gin.Context) (ListOptions, bool) {
	opts := ListOptions{StartAfter: c.Query("start_after")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid limit"})
			return ListOptions{}, false
		}
		opts.Limit = uint32(limit)
	}
	return opts, true
}

func (h *Handler) respondTx(c *gin.Context, out []byte, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "output": rawJSON(out)})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, chain.ErrParseOutput):
		message = chain.ErrParseOutput.Error()
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Contract request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"success": false, "message": message})
}

// rawJSON embeds already-encoded JSON in a gin.H without re-quoting it
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}
