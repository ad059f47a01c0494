package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Exchange identifies a contract naming convention.
type Exchange string

const (
	COMEX Exchange = "COMEX"
	SHFE  Exchange = "SHFE"
)

// Policy selects which delivery months are eligible during enumeration.
type Policy int

const (
	// AllMonths enumerates every calendar month.
	AllMonths Policy = iota
	// QuarterlyMonths enumerates March, June, September and December only.
	QuarterlyMonths
)

var quarterly = map[time.Month]bool{
	time.March:     true,
	time.June:      true,
	time.September: true,
	time.December:  true,
}

// comexMonthCodes maps January..December to the CME/COMEX month letters.
const comexMonthCodes = "FGHJKMNQUVXZ"

// Convention describes how one exchange names contracts and when they stop trading.
type Convention struct {
	Exchange  Exchange
	Root      string
	ExpiryDay int
	Suffix    string
}

// NewConvention returns the convention for an exchange with the given product root.
// The suffix is appended verbatim to generated tickers (e.g. ".CMX" for Yahoo).
func NewConvention(exchange Exchange, root, suffix string) (Convention, error) {
	root = strings.ToUpper(strings.TrimSpace(root))
	if root == "" {
		return Convention{}, fmt.Errorf("calendar: empty product root for %s", exchange)
	}
	switch exchange {
	case COMEX:
		return Convention{Exchange: COMEX, Root: root, ExpiryDay: 25, Suffix: suffix}, nil
	case SHFE:
		return Convention{Exchange: SHFE, Root: root, ExpiryDay: 15, Suffix: suffix}, nil
	default:
		return Convention{}, fmt.Errorf("calendar: unknown exchange %q", exchange)
	}
}

// Contract is an immutable futures contract descriptor.
type Contract struct {
	Ticker         string
	Exchange       Exchange
	DeliveryYear   int
	DeliveryMonth  time.Month
	ExpiryEstimate time.Time
}

// MonthLabel renders the delivery month as YYYY-MM.
func (c Contract) MonthLabel() string {
	return fmt.Sprintf("%04d-%02d", c.DeliveryYear, int(c.DeliveryMonth))
}

// Delivery returns the first day of the delivery month, used for ordering.
func (c Contract) Delivery() time.Time {
	return time.Date(c.DeliveryYear, c.DeliveryMonth, 1, 0, 0, 0, 0, time.UTC)
}

// ExpiredAt reports whether the contract has stopped trading at ref.
// The expiry day itself still counts as tradable.
func (c Contract) ExpiredAt(ref time.Time) bool {
	return Day(ref).After(c.ExpiryEstimate)
}

// Contract builds the descriptor for a delivery month.
func (cv Convention) Contract(year int, month time.Month) Contract {
	return Contract{
		Ticker:         cv.ticker(year, month),
		Exchange:       cv.Exchange,
		DeliveryYear:   year,
		DeliveryMonth:  month,
		ExpiryEstimate: time.Date(year, month, cv.ExpiryDay, 0, 0, 0, 0, time.UTC),
	}
}

func (cv Convention) ticker(year int, month time.Month) string {
	yy := year % 100
	switch cv.Exchange {
	case COMEX:
		return fmt.Sprintf("%s%c%02d%s", cv.Root, comexMonthCodes[month-1], yy, cv.Suffix)
	default:
		return fmt.Sprintf("%s%02d%02d%s", cv.Root, yy, int(month), cv.Suffix)
	}
}

// Next returns the offset-th (zero based) non-expired contract at ref under policy.
// A negative offset is treated as zero.
func (cv Convention) Next(ref time.Time, offset int, policy Policy) Contract {
	if offset < 0 {
		offset = 0
	}
	ref = Day(ref)
	year, month := ref.Year(), ref.Month()
	seen := 0
	for {
		if eligible(month, policy) {
			c := cv.Contract(year, month)
			if !c.ExpiredAt(ref) {
				if seen == offset {
					return c
				}
				seen++
			}
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
}

// Enumerate returns the first n non-expired contracts at ref, nearest first.
func (cv Convention) Enumerate(ref time.Time, n int, policy Policy) []Contract {
	if n <= 0 {
		return nil
	}
	out := make([]Contract, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cv.Next(ref, i, policy))
	}
	return out
}

// Between returns every eligible contract whose delivery month lies in [from, to],
// regardless of expiry. Spread reconstruction needs contracts that have already
// expired relative to today but were live at historical anchors.
func (cv Convention) Between(from, to time.Time, policy Policy) []Contract {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil
	}
	var out []Contract
	year, month := from.Year(), from.Month()
	for {
		if year > to.Year() || (year == to.Year() && month > to.Month()) {
			return out
		}
		if eligible(month, policy) {
			out = append(out, cv.Contract(year, month))
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
}

func eligible(month time.Month, policy Policy) bool {
	if policy == QuarterlyMonths {
		return quarterly[month]
	}
	return true
}
