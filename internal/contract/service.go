// Package contract exposes the ZK Carbon contract's messages as typed operations and HTTP routes.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/chain"
	"zk-carbon/contract-runner/pkg/geospatial"
	"zk-carbon/contract-runner/pkg/storage"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	// upper bound on pages walked by AllClaims
	maxClaimPages = 100

	organizationsPrefix = "organizations:"
	claimsPrefix        = "claims:"
)

// Executor runs built commands. *chain.Executor satisfies it.
type Executor interface {
	Run(ctx context.Context, cmd *chain.Command) ([]byte, error)
	RunJSON(ctx context.Context, cmd *chain.Command) (json.RawMessage, error)
}

// ServiceConfig configures the contract service
type ServiceConfig struct {
	// ContractAddress is used by every typed operation except CreateClaim and RunCommand
	ContractAddress string
	ListLimit       uint32
	Gateway         *storage.IPFSGateway
	// Cache is optional; nil disables listing caching
	Cache *ListingCache
}

// ListOptions pages a listing. Zero values mean "from the start" and the configured limit.
type ListOptions struct {
	StartAfter string
	Limit      uint32
}

// Service provides contract business logic
type Service struct {
	builder  *chain.Builder
	executor Executor
	config   ServiceConfig
	logger   *zap.Logger
}

// NewService creates a new contract service
func NewService(builder *chain.Builder, executor Executor, config ServiceConfig, logger *zap.Logger) *Service {
	if config.ListLimit == 0 {
		config.ListLimit = defaultListLimit
	}
	if config.Gateway == nil {
		config.Gateway = storage.NewIPFSGateway("")
	}
	return &Service{
		builder:  builder,
		executor: executor,
		config:   config,
		logger:   logger,
	}
}

// RunCommand builds and runs an arbitrary contract call and returns the raw CLI output
func (s *Service) RunCommand(ctx context.Context, req CommandRequest) ([]byte, error) {
	if req.Type == "" || req.ContractAddress == "" || req.FunctionName == "" {
		return nil, &InputError{Message: missingCommandFields}
	}

	cmd, err := s.build(chain.Request{
		Kind:            chain.Kind(req.Type),
		ContractAddress: req.ContractAddress,
		FunctionName:    req.FunctionName,
		Params:          req.QueryParams,
	})
	if err != nil {
		return nil, err
	}

	out, err := s.executor.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if cmd.IsExecute() {
		s.invalidate()
	}
	return out, nil
}

// ListOrganizations returns one page of get_all_organizations
func (s *Service) ListOrganizations(ctx context.Context, opts ListOptions) ([]Organization, error) {
	page := Page{Limit: opts.Limit}
	if opts.StartAfter != "" {
		if !chain.ValidAddress(opts.StartAfter) {
			return nil, invalidf("invalid start_after address %q", opts.StartAfter)
		}
		page.StartAfter = opts.StartAfter
	}
	if err := s.limit(&page); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s%s:%d", organizationsPrefix, opts.StartAfter, page.Limit)
	if cached, ok := s.cached(key); ok {
		return cached.([]Organization), nil
	}

	raw, err := s.query(ctx, "get_all_organizations", page)
	if err != nil {
		return nil, err
	}
	var orgs []Organization
	if err := chain.Decode(raw, "data.organizations", &orgs); err != nil {
		return nil, err
	}
	if orgs == nil {
		orgs = []Organization{}
	}

	s.store(key, orgs)
	return orgs, nil
}

// GetOrganization returns the detail record of one organization
func (s *Service) GetOrganization(ctx context.Context, address string) (*OrganizationDetail, error) {
	if !chain.ValidAddress(address) {
		return nil, invalidf("invalid organization address %q", address)
	}

	raw, err := s.query(ctx, "get_organization", map[string]string{"address": address})
	if err != nil {
		return nil, err
	}
	var org OrganizationDetail
	if err := chain.Decode(raw, "data", &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// ListClaims returns one page of claims, optionally filtered by status
func (s *Service) ListClaims(ctx context.Context, status ClaimStatus, opts ListOptions) ([]ClaimView, error) {
	if status != "" && !status.Valid() {
		return nil, invalidf("invalid claim status %q", status)
	}
	page, err := s.idPage(opts)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s%s:%s:%d", claimsPrefix, status, opts.StartAfter, page.Limit)
	if cached, ok := s.cached(key); ok {
		return cached.([]ClaimView), nil
	}

	claims, err := s.fetchClaims(ctx, status, page)
	if err != nil {
		return nil, err
	}
	views := make([]ClaimView, len(claims))
	for i, c := range claims {
		views[i] = s.view(c)
	}

	s.store(key, views)
	return views, nil
}

// AllClaims walks every page of get_claims. It bypasses the cache.
func (s *Service) AllClaims(ctx context.Context) ([]Claim, error) {
	var all []Claim
	page := Page{Limit: s.config.ListLimit}
	for i := 0; i < maxClaimPages; i++ {
		claims, err := s.fetchClaims(ctx, "", page)
		if err != nil {
			return nil, err
		}
		all = append(all, claims...)
		if len(claims) < int(page.Limit) {
			break
		}
		page.StartAfter = claims[len(claims)-1].ID
	}
	return all, nil
}

// GetClaim returns one claim by id
func (s *Service) GetClaim(ctx context.Context, id uint64) (*ClaimView, error) {
	raw, err := s.query(ctx, "get_claim", map[string]uint64{"id": id})
	if err != nil {
		return nil, err
	}
	var claim Claim
	if err := chain.Decode(raw, "data", &claim); err != nil {
		return nil, err
	}
	view := s.view(claim)
	return &view, nil
}

// CreateClaim submits create_claim to the contract named in the request
func (s *Service) CreateClaim(ctx context.Context, req CreateClaimRequest) (json.RawMessage, error) {
	if req.ContractAddress == "" ||
		req.Longitudes == nil ||
		req.Latitudes == nil ||
		req.TimeStarted == 0 ||
		req.TimeEnded == 0 ||
		req.DemandedTokens.Missing() ||
		req.IPFSHashes == nil {
		return nil, &InputError{Message: missingClaimFields}
	}

	msg := createClaimMsg{
		Longitudes:     decimalsToStrings(req.Longitudes),
		Latitudes:      decimalsToStrings(req.Latitudes),
		TimeStarted:    req.TimeStarted,
		TimeEnded:      req.TimeEnded,
		DemandedTokens: req.DemandedTokens.Uint128,
		IPFSHashes:     req.IPFSHashes,
	}
	if _, err := geospatial.ParsePoints(msg.Latitudes, msg.Longitudes); err != nil {
		return nil, invalidWrap(err)
	}
	if req.TimeEnded < req.TimeStarted {
		return nil, invalidf("time_ended must not be before time_started")
	}
	for _, hash := range req.IPFSHashes {
		if err := storage.ValidateCID(hash); err != nil {
			s.logger.Warn("Claim evidence is not a content hash", zap.String("ipfs_hash", hash))
		}
	}

	return s.call(ctx, chain.KindExecute, req.ContractAddress, "create_claim", msg)
}

// CastVote votes on an active claim
func (s *Service) CastVote(ctx context.Context, claimID uint64, vote VoteOption) (json.RawMessage, error) {
	if vote != VoteYes && vote != VoteNo {
		return nil, invalidf("invalid vote %q, use Yes or No", vote)
	}
	return s.execute(ctx, "cast_vote", struct {
		ClaimID uint64     `json:"claim_id"`
		Vote    VoteOption `json:"vote"`
	}{claimID, vote})
}

// FinalizeVoting closes voting on a claim whose voting period has ended
func (s *Service) FinalizeVoting(ctx context.Context, claimID uint64) (json.RawMessage, error) {
	return s.execute(ctx, "finalize_voting", map[string]uint64{"claim_id": claimID})
}

// UpdateOrganizationName renames the sender's organization
func (s *Service) UpdateOrganizationName(ctx context.Context, name string) (json.RawMessage, error) {
	if name == "" {
		return nil, invalidf("Missing required fields: name")
	}
	return s.execute(ctx, "update_organization_name", map[string]string{"name": name})
}

// AddEmission records emissions for the sender's organization
func (s *Service) AddEmission(ctx context.Context, emissions Uint128) (json.RawMessage, error) {
	if emissions.IsZero() {
		return nil, invalidf("Missing required fields: emissions")
	}
	return s.execute(ctx, "add_organization_emission", map[string]Uint128{"emissions": emissions})
}

// ListLendRequests returns the lend requests where user is borrower or lender
func (s *Service) ListLendRequests(ctx context.Context, user string, opts ListOptions) ([]LendRequest, error) {
	if !chain.ValidAddress(user) {
		return nil, invalidf("invalid user address %q", user)
	}
	page, err := s.idPage(opts)
	if err != nil {
		return nil, err
	}

	raw, err := s.query(ctx, "user_lend_requests", struct {
		User       string      `json:"user"`
		StartAfter interface{} `json:"start_after"`
		Limit      uint32      `json:"limit"`
	}{user, page.StartAfter, page.Limit})
	if err != nil {
		return nil, err
	}
	var requests []LendRequest
	if err := chain.Decode(raw, "data.lend_requests", &requests); err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []LendRequest{}
	}
	return requests, nil
}

// RequestTokens asks lender for amount carbon credits
func (s *Service) RequestTokens(ctx context.Context, lender string, amount Uint128) (json.RawMessage, error) {
	if err := validTransfer(lender, amount); err != nil {
		return nil, err
	}
	return s.execute(ctx, "create_lend_token", transferMsg{Lender: lender, Amount: amount})
}

// RespondLendRequest accepts or denies a lend request addressed to the sender
func (s *Service) RespondLendRequest(ctx context.Context, requestID uint64, response LendResponse) (json.RawMessage, error) {
	if response != LendAccepted && response != LendDenied {
		return nil, invalidf("invalid response %q, use accepted or denied", response)
	}
	return s.execute(ctx, "lend_tokens", struct {
		LendRequestID uint64       `json:"lend_request_id"`
		Response      LendResponse `json:"response"`
	}{requestID, response})
}

// VerifyEligibility asks the contract to score borrower for a loan from lender
func (s *Service) VerifyEligibility(ctx context.Context, borrower string, amount Uint128, lender string) (json.RawMessage, error) {
	if !chain.ValidAddress(borrower) {
		return nil, invalidf("invalid borrower address %q", borrower)
	}
	if err := validTransfer(lender, amount); err != nil {
		return nil, err
	}
	return s.execute(ctx, "verify_eligibility", struct {
		Borrower string  `json:"borrower"`
		Amount   Uint128 `json:"amount"`
		Lender   string  `json:"lender"`
	}{borrower, amount, lender})
}

// RepayTokens returns borrowed credits to lender
func (s *Service) RepayTokens(ctx context.Context, lender string, amount Uint128) (json.RawMessage, error) {
	if err := validTransfer(lender, amount); err != nil {
		return nil, err
	}
	return s.execute(ctx, "repay_tokens", transferMsg{Lender: lender, Amount: amount})
}

// GetConfig returns the contract configuration
func (s *Service) GetConfig(ctx context.Context) (*Config, error) {
	raw, err := s.query(ctx, "get_config", struct{}{})
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := chain.Decode(raw, "data", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetTotalCarbonCredits returns the credits minted across all organizations
func (s *Service) GetTotalCarbonCredits(ctx context.Context) (Uint128, error) {
	raw, err := s.query(ctx, "get_total_carbon_credits", struct{}{})
	if err != nil {
		return "", err
	}
	var total Uint128
	if err := chain.Decode(raw, "data.total", &total); err != nil {
		return "", err
	}
	return total, nil
}

// RefreshListings drops the cached listings and reloads the default pages
func (s *Service) RefreshListings(ctx context.Context) error {
	s.invalidate()
	if _, err := s.ListOrganizations(ctx, ListOptions{}); err != nil {
		return fmt.Errorf("failed to refresh organizations: %w", err)
	}
	if _, err := s.ListClaims(ctx, "", ListOptions{}); err != nil {
		return fmt.Errorf("failed to refresh claims: %w", err)
	}
	return nil
}

// CacheStats reports listing cache usage; ok is false when caching is off
func (s *Service) CacheStats() (stats CacheStats, ok bool) {
	if s.config.Cache == nil {
		return CacheStats{}, false
	}
	return s.config.Cache.Stats(), true
}

type transferMsg struct {
	Lender string  `json:"lender"`
	Amount Uint128 `json:"amount"`
}

func validTransfer(lender string, amount Uint128) error {
	if !chain.ValidAddress(lender) {
		return invalidf("invalid lender address %q", lender)
	}
	if amount.IsZero() {
		return invalidf("Missing required fields: amount")
	}
	return nil
}

func (s *Service) fetchClaims(ctx context.Context, status ClaimStatus, page Page) ([]Claim, error) {
	var (
		raw json.RawMessage
		err error
	)
	if status == "" {
		raw, err = s.query(ctx, "get_claims", page)
	} else {
		raw, err = s.query(ctx, "get_claims_by_status", struct {
			Status     ClaimStatus `json:"status"`
			StartAfter interface{} `json:"start_after"`
			Limit      uint32      `json:"limit"`
		}{status, page.StartAfter, page.Limit})
	}
	if err != nil {
		return nil, err
	}

	var claims []Claim
	if err := chain.Decode(raw, "data.claims", &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Service) view(c Claim) ClaimView {
	v := ClaimView{Claim: c, EvidenceURLs: s.config.Gateway.URLs(c.IPFSHashes)}

	points, err := geospatial.ParsePoints(c.Latitudes, c.Longitudes)
	if err != nil || len(points) == 0 {
		return v
	}
	g := geospatial.Geometry(points)
	if len(points) >= 3 {
		ha := geospatial.ConvertToHectares(geospatial.CalculateArea(g))
		v.AreaHectares = &ha
	}
	centroid := geospatial.CalculateCentroid(g)
	v.Centroid = &[2]float64{centroid[0], centroid[1]}
	return v
}

func (s *Service) idPage(opts ListOptions) (Page, error) {
	page := Page{Limit: opts.Limit}
	if opts.StartAfter != "" {
		id, err := strconv.ParseUint(opts.StartAfter, 10, 64)
		if err != nil {
			return Page{}, invalidf("invalid start_after id %q", opts.StartAfter)
		}
		page.StartAfter = id
	}
	if err := s.limit(&page); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (s *Service) limit(page *Page) error {
	if page.Limit == 0 {
		page.Limit = s.config.ListLimit
	}
	if page.Limit > maxListLimit {
		return invalidf("limit must be at most %d", maxListLimit)
	}
	return nil
}

func (s *Service) query(ctx context.Context, function string, params interface{}) (json.RawMessage, error) {
	return s.call(ctx, chain.KindQuery, s.config.ContractAddress, function, params)
}

func (s *Service) execute(ctx context.Context, function string, params interface{}) (json.RawMessage, error) {
	return s.call(ctx, chain.KindExecute, s.config.ContractAddress, function, params)
}

func (s *Service) call(ctx context.Context, kind chain.Kind, address, function string, params interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s params: %w", function, err)
	}

	cmd, err := s.build(chain.Request{
		Kind:            kind,
		ContractAddress: address,
		FunctionName:    function,
		Params:          raw,
	})
	if err != nil {
		return nil, err
	}

	out, err := s.executor.RunJSON(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if cmd.IsExecute() {
		s.invalidate()
	}
	return out, nil
}

// build maps malformed addresses, names and params to input errors. An unknown kind stays a server error.
func (s *Service) build(req chain.Request) (*chain.Command, error) {
	cmd, err := s.builder.Build(req)
	if err != nil {
		if errors.Is(err, chain.ErrInvalidKind) {
			return nil, err
		}
		return nil, invalidWrap(err)
	}
	return cmd, nil
}

func (s *Service) cached(key string) (interface{}, bool) {
	if s.config.Cache == nil {
		return nil, false
	}
	return s.config.Cache.Get(key)
}

func (s *Service) store(key string, value interface{}) {
	if s.config.Cache != nil {
		s.config.Cache.Set(key, value)
	}
}

func (s *Service) invalidate() {
	if s.config.Cache != nil {
		s.config.Cache.DeleteByPrefix(organizationsPrefix)
		s.config.Cache.DeleteByPrefix(claimsPrefix)
	}
}
