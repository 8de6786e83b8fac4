package carrier

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// esimAccessPriceScale converts API price units (1/10000 USD) into USD
const esimAccessPriceScale = 4

// EsimAccessPrice converts an API price into a decimal USD amount
func EsimAccessPrice(units int64) decimal.Decimal {
	return decimal.New(units, -esimAccessPriceScale)
}

// ---------------------------------------------------------------------------
// eSIM Access API Types
// ---------------------------------------------------------------------------

// EsimAccessResponse is the common response envelope
type EsimAccessResponse struct {
	Success   bool            `json:"success"`
	ErrorCode string          `json:"errorCode"`
	ErrorMsg  string          `json:"errorMsg"`
	Obj       json.RawMessage `json:"obj"`
}

// IsSuccess returns true if the API accepted the request
func (r *EsimAccessResponse) IsSuccess() bool {
	return r.Success && (r.ErrorCode == "" || r.ErrorCode == "0")
}

// EsimAccessPackageList is the obj of POST /package/list
type EsimAccessPackageList struct {
	PackageList []json.RawMessage `json:"packageList"`
}

// EsimAccessPackage is a catalog entry
type EsimAccessPackage struct {
	PackageCode  string `json:"packageCode"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Price        int64  `json:"price"` // 1/10000 of CurrencyCode
	CurrencyCode string `json:"currencyCode"`
	Volume       int64  `json:"volume"` // bytes, 0 when unlimited
	Duration     int    `json:"duration"`
	DurationUnit string `json:"durationUnit"`
	Location     string `json:"location"` // comma separated ISO codes
	Speed        string `json:"speed"`
	DataType     int    `json:"dataType"`
}

// EsimAccessOrderRequest is the body of POST /esim/order
type EsimAccessOrderRequest struct {
	TransactionID   string                  `json:"transactionId"`
	PackageInfoList []EsimAccessPackageInfo `json:"packageInfoList"`
}

// EsimAccessPackageInfo is one package purchase
type EsimAccessPackageInfo struct {
	PackageCode string `json:"packageCode"`
	Count       int    `json:"count"`
}

// EsimAccessOrderResult is the obj of POST /esim/order
type EsimAccessOrderResult struct {
	OrderNo string `json:"orderNo"`
}

// EsimAccessQueryRequest is the body of POST /esim/query
type EsimAccessQueryRequest struct {
	OrderNo string               `json:"orderNo,omitempty"`
	ICCID   string               `json:"iccid,omitempty"`
	Pager   EsimAccessQueryPager `json:"pager"`
}

// EsimAccessQueryPager selects a result page
type EsimAccessQueryPager struct {
	PageNum  int `json:"pageNum"`
	PageSize int `json:"pageSize"`
}

// EsimAccessQueryResult is the obj of POST /esim/query
type EsimAccessQueryResult struct {
	EsimList []EsimAccessProfile `json:"esimList"`
}

// EsimAccessProfile is an allocated eSIM profile
type EsimAccessProfile struct {
	EsimTranNo       string `json:"esimTranNo"`
	OrderNo          string `json:"orderNo"`
	ICCID            string `json:"iccid"`
	AC               string `json:"ac"` // LPA:1$<smdp>$<matching id>
	EsimStatus       string `json:"esimStatus"`
	SmdpStatus       string `json:"smdpStatus"`
	TotalVolume      int64  `json:"totalVolume"`
	OrderUsage       int64  `json:"orderUsage"`
	ExpiredTime      string `json:"expiredTime"`
	InstallationTime string `json:"installationTime"`
}

// EsimAccessBalance is the obj of POST /merchant/balance/query
type EsimAccessBalance struct {
	Balance int64 `json:"balance"`
}
