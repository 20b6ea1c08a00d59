package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ClaimStatus mirrors the contract's claim lifecycle. Active means voting is open.
type ClaimStatus string

const (
	ClaimStatusActive   ClaimStatus = "Active"
	ClaimStatusApproved ClaimStatus = "Approved"
	ClaimStatusRejected ClaimStatus = "Rejected"
)

// Valid reports whether s is a status the contract knows
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusActive, ClaimStatusApproved, ClaimStatusRejected:
		return true
	}
	return false
}

// VoteOption is a ballot on a claim
type VoteOption string

const (
	VoteYes VoteOption = "Yes"
	VoteNo  VoteOption = "No"
)

// LendStatus mirrors the contract's lend request lifecycle
type LendStatus string

const (
	LendStatusActive   LendStatus = "Active"
	LendStatusApproved LendStatus = "Approved"
	LendStatusRejected LendStatus = "Rejected"
)

// LendResponse is the lender's answer to a lend request
type LendResponse string

const (
	LendAccepted LendResponse = "accepted"
	LendDenied   LendResponse = "denied"
)

// Uint128 is the contract's string-encoded integer. It decodes from a JSON string or number.
type Uint128 string

func (u *Uint128) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*u = ""
		return nil
	}
	if !isDigits(s) {
		return fmt.Errorf("invalid uint128 %q", s)
	}
	*u = Uint128(strings.TrimLeft(s, "0"))
	if *u == "" {
		*u = "0"
	}
	return nil
}

// IsZero reports whether the amount is absent or zero
func (u Uint128) IsZero() bool {
	return u == "" || u == "0"
}

// ClaimAmount is the demanded_tokens input. Unlike Uint128 it keeps whether the raw value
// was the number 0, which counts as missing while the string "0" does not.
type ClaimAmount struct {
	Uint128
	zeroNumber bool
}

func (a *ClaimAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if err := a.Uint128.UnmarshalJSON(data); err != nil {
		return err
	}
	a.zeroNumber = len(data) > 0 && data[0] != '"' && a.Uint128 == "0"
	return nil
}

// Missing reports whether the value was absent, null, "" or the number 0
func (a ClaimAmount) Missing() bool {
	return a.Uint128 == "" || a.zeroNumber
}

func isDigits(s string) bool {
	if len(s) == 0 || len(s) > 39 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Decimal is a coordinate component. The contract stores it as a string; clients may send numbers.
type Decimal string

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Decimal(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid coordinate %s", string(data))
	}
	*d = Decimal(n.String())
	return nil
}

func decimalsToStrings(ds []Decimal) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}

// Organization is an entry of get_all_organizations
type Organization struct {
	Address         string  `json:"address"`
	Name            string  `json:"name"`
	ReputationScore Uint128 `json:"reputation_score"`
	CarbonCredits   Uint128 `json:"carbon_credits"`
}

// OrganizationDetail is the get_organization response
type OrganizationDetail struct {
	Address         string  `json:"address"`
	Name            string  `json:"name"`
	ReputationScore Uint128 `json:"reputation_score"`
	CarbonCredits   Uint128 `json:"carbon_credits"`
	Debt            Uint128 `json:"debt"`
	TimesBorrowed   uint32  `json:"times_borrowed"`
	TotalBorrowed   Uint128 `json:"total_borrowed"`
	TotalReturned   Uint128 `json:"total_returned"`
	Emissions       Uint128 `json:"emissions"`
}

// Claim is a carbon-credit claim as stored by the contract
type Claim struct {
	ID             uint64      `json:"id"`
	Organization   string      `json:"organization"`
	Longitudes     []string    `json:"longitudes"`
	Latitudes      []string    `json:"latitudes"`
	TimeStarted    uint64      `json:"time_started"`
	TimeEnded      uint64      `json:"time_ended"`
	DemandedTokens Uint128     `json:"demanded_tokens"`
	IPFSHashes     []string    `json:"ipfs_hashes"`
	Status         ClaimStatus `json:"status"`
	VotingEndTime  uint64      `json:"voting_end_time"`
	YesVotes       Uint128     `json:"yes_votes"`
	NoVotes        Uint128     `json:"no_votes"`
}

// ClaimView is a claim enriched for display
type ClaimView struct {
	Claim
	EvidenceURLs []string    `json:"evidence_urls"`
	AreaHectares *float64    `json:"area_hectares,omitempty"`
	Centroid     *[2]float64 `json:"centroid,omitempty"` // [longitude, latitude]
}

// LendRequest is an entry of user_lend_requests
type LendRequest struct {
	ID               uint64     `json:"id"`
	Borrower         string     `json:"borrower"`
	Lender           string     `json:"lender"`
	Status           LendStatus `json:"status"`
	EligibilityScore Uint128    `json:"eligibility_score"`
	ProofData        string     `json:"proof_data"`
	Time             uint64     `json:"time"`
	Amount           Uint128    `json:"amount"`
	Role             string     `json:"role"`
}

// Config is the get_config response
type Config struct {
	Owner              string  `json:"owner"`
	VotingPeriod       uint64  `json:"voting_period"`
	TotalCarbonCredits Uint128 `json:"total_carbon_credits"`
}

// Page is the start_after/limit pair every paged query takes. StartAfter is sent as null when unset.
type Page struct {
	StartAfter interface{} `json:"start_after"`
	Limit      uint32      `json:"limit"`
}

// CreateClaimRequest is the body of POST /api/addClaim
type CreateClaimRequest struct {
	ContractAddress string      `json:"contractAddress"`
	Longitudes      []Decimal   `json:"longitudes"`
	Latitudes       []Decimal   `json:"latitudes"`
	TimeStarted     uint64      `json:"time_started"`
	TimeEnded       uint64      `json:"time_ended"`
	DemandedTokens  ClaimAmount `json:"demanded_tokens"`
	IPFSHashes      []string    `json:"ipfs_hashes"`
}

// CommandRequest is the body of POST /command
type CommandRequest struct {
	Type            string          `json:"type"`
	ContractAddress string          `json:"contractAddress"`
	FunctionName    string          `json:"functionName"`
	QueryParams     json.RawMessage `json:"queryParams"`
}

type createClaimMsg struct {
	Longitudes     []string `json:"longitudes"`
	Latitudes      []string `json:"latitudes"`
	TimeStarted    uint64   `json:"time_started"`
	TimeEnded      uint64   `json:"time_ended"`
	DemandedTokens Uint128  `json:"demanded_tokens"`
	IPFSHashes     []string `json:"ipfs_hashes"`
}
