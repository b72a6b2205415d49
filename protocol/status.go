package protocol

import "fmt"

// Status is the application-plane result code carried in reply headers.
// Zero (OK) in requests and callbacks.
type Status uint16

const (
	StatusOK                   Status = 0
	StatusErrBadRequest        Status = 1
	StatusErrAuth              Status = 2
	StatusErrNotFound          Status = 3
	StatusErrCurrency          Status = 4
	StatusErrInsufficientFunds Status = 5
	StatusErrPasswordFormat    Status = 6
	// StatusErrRateLimited is a runtime-local addition (spec is silent on
	// transport-plane throttling): the dispatcher's rate-limit middleware
	// uses it to reject a request without ever reaching bank.Processor.
	StatusErrRateLimited Status = 7
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusErrBadRequest:
		return "ERR_BAD_REQUEST"
	case StatusErrAuth:
		return "ERR_AUTH"
	case StatusErrNotFound:
		return "ERR_NOT_FOUND"
	case StatusErrCurrency:
		return "ERR_CURRENCY"
	case StatusErrInsufficientFunds:
		return "ERR_INSUFFICIENT_FUNDS"
	case StatusErrPasswordFormat:
		return "ERR_PASSWORD_FORMAT"
	case StatusErrRateLimited:
		return "ERR_RATE_LIMITED"
	default:
		return fmt.Sprintf("Status(%d)", uint16(s))
	}
}

// Currency enumerates the two supported ledger currencies. There is no
// conversion between them; equality is exact.
type Currency uint16

const (
	CurrencyCNY Currency = 0
	CurrencySGD Currency = 1
)

func (c Currency) String() string {
	switch c {
	case CurrencyCNY:
		return "CNY"
	case CurrencySGD:
		return "SGD"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(c))
	}
}
