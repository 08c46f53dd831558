package claim

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = 100_000_000

const amountPattern = `(?:(\d+(?:[.,]\d+)?)\s*btc\b|(\d[\d,]*)\s*(?:satoshis?|sats?)\b)`

var (
	// "You won 10 satoshi", "credited with 0.00000010 BTC", "reward: 5 sats"
	payoutBefore = regexp.MustCompile(`(?i)\b(?:won|received|claimed|credited|earned|rewarded|reward|got)\b[^0-9.!?\n]{0,20}?` + amountPattern)
	// "+1,250 sats credited", "35 satoshi added to your balance"
	payoutAfter = regexp.MustCompile(`(?i)` + amountPattern + `\s+(?:(?:has|have) been\s+|was\s+|were\s+)?(?:credited|added to|received|claimed|won)\b`)

	declinePhrase = regexp.MustCompile(`(?i)\b(?:already claimed|please wait|you must wait|you have to wait|too (?:early|soon))\b`)
	waitPhrase    = regexp.MustCompile(`(?i)(?:wait|again in|next claim in|available in)\s+(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?)\b`)
)

// ParseAmount extracts a payout from page text such as "You won
// 0.00000010 BTC" or "25 satoshi added to your balance". Amounts that are
// not tied to payout wording (balances, advertised maximums) are ignored.
// Fractions finer than one satoshi are truncated.
func ParseAmount(text string) (int64, bool) {
	for _, re := range []*regexp.Regexp{payoutBefore, payoutAfter} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if sats, ok := toSats(m[1], m[2]); ok {
				return sats, true
			}
		}
	}
	return 0, false
}

func toSats(btc, sats string) (int64, bool) {
	if btc != "" {
		d, err := decimal.NewFromString(strings.ReplaceAll(btc, ",", "."))
		if err != nil {
			return 0, false
		}
		n := d.Shift(8).Truncate(0).IntPart()
		return n, n > 0
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(sats, ",", ""), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Declined reports whether the page refused the claim outright, e.g.
// "You have already claimed, please wait 42 minutes".
func Declined(text string) bool {
	return declinePhrase.MatchString(text)
}

// ParseWait extracts a "try again in N minutes" hint from page text.
func ParseWait(text string) (time.Duration, bool) {
	m := waitPhrase.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	switch {
	case strings.HasPrefix(unit, "h"):
		return time.Duration(n) * time.Hour, true
	case strings.HasPrefix(unit, "m"):
		return time.Duration(n) * time.Minute, true
	default:
		return time.Duration(n) * time.Second, true
	}
}
