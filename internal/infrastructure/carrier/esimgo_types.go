package carrier

import (
	"encoding/json"
	"strings"
)

// ---------------------------------------------------------------------------
// eSIM Go API Response Types
// ---------------------------------------------------------------------------

// EsimGoCatalogueResponse is one page of GET /catalogue
type EsimGoCatalogueResponse struct {
	Bundles   []json.RawMessage `json:"bundles"`
	PageCount int               `json:"pageCount"`
	Rows      int               `json:"rows"`
	PageSize  int               `json:"pageSize"`
}

// EsimGoBundle is a catalog entry
type EsimGoBundle struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Countries   []EsimGoCountry `json:"countries"`
	DataAmount  int             `json:"dataAmount"` // MB, -1 when unlimited
	Duration    int             `json:"duration"`   // days
	Speed       []string        `json:"speed"`
	Unlimited   bool            `json:"unlimited"`
	Price       float64         `json:"price"`
	Currency    string          `json:"currency"`
}

// EsimGoCountry is a bundle coverage entry
type EsimGoCountry struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	ISO    string `json:"iso"`
}

// NetworkType returns the fastest advertised network generation
func (b *EsimGoBundle) NetworkType() string {
	best := ""
	for _, s := range b.Speed {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s > best {
			best = s
		}
	}
	return best
}

// EsimGoOrderRequest is the body of POST /orders
type EsimGoOrderRequest struct {
	Type   string            `json:"type"`
	Assign bool              `json:"assign"`
	Order  []EsimGoOrderLine `json:"order"`
}

// EsimGoOrderLine is one bundle purchase within an order
type EsimGoOrderLine struct {
	Type     string   `json:"type"`
	Quantity int      `json:"quantity"`
	Item     string   `json:"item"`
	ICCIDs   []string `json:"iccids,omitempty"`
}

// EsimGoOrderResponse is the result of POST /orders
type EsimGoOrderResponse struct {
	Total          float64 `json:"total"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	StatusMessage  string  `json:"statusMessage"`
	OrderReference string  `json:"orderReference"`
	Assigned       bool    `json:"assigned"`
}

// IsSuccess returns true if the order completed
func (r *EsimGoOrderResponse) IsSuccess() bool {
	return strings.EqualFold(r.Status, "completed") && r.OrderReference != ""
}

// EsimGoAssignment is one eSIM returned by GET /esims/assignments
type EsimGoAssignment struct {
	ICCID        string `json:"iccid"`
	MatchingCode string `json:"matchingCode"`
	SmdpAddress  string `json:"smdpAddress"`
	Bundle       string `json:"bundle"`
}

// EsimGoOrganisationResponse is the result of GET /organisation
type EsimGoOrganisationResponse struct {
	Organisations []struct {
		Name     string  `json:"name"`
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"organisations"`
}

// EsimGoEsim is the result of GET /esims/{iccid}
type EsimGoEsim struct {
	ICCID                  string `json:"iccid"`
	MatchingID             string `json:"matchingId"`
	SmdpAddress            string `json:"smdpAddress"`
	ProfileStatus          string `json:"profileStatus"`
	FirstInstalledDateTime string `json:"firstInstalledDateTime"`
}

// EsimGoBundlesResponse is the result of GET /esims/{iccid}/bundles
type EsimGoBundlesResponse struct {
	Bundles []struct {
		Name        string `json:"name"`
		Assignments []struct {
			InitialQuantity   int64  `json:"initialQuantity"`   // bytes
			RemainingQuantity int64  `json:"remainingQuantity"` // bytes
			EndTime           string `json:"endTime"`
			Unlimited         bool   `json:"unlimited"`
			BundleState       string `json:"bundleState"`
		} `json:"assignments"`
	} `json:"bundles"`
}
