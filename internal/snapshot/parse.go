package snapshot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/utils"
	"github.com/shopspring/decimal"
)

const (
	recordMarker    = "Delegate info for"
	timestampLayout = "2006-01-02 15:04:05"
)

var recordPattern = regexp.MustCompile(
	`Timestamp: (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}), Block: (\d+), ` +
		`Delegate info for (\w+): (\{.*\})\s*$`,
)

type delegateInfo struct {
	TotalStake        json.Number `json:"total_stake"`
	TotalDailyReturn  json.Number `json:"total_daily_return"`
	Take              json.Number `json:"take"`
	Nominators        [][]any     `json:"nominators"`
	NominatorsPercent [][]any     `json:"nominators_percent"`
}

// isRecord reports whether the log line claims to carry a snapshot. Other
// lines written by the logger (connection notices, price reports) are not records.
func isRecord(line string) bool {
	return strings.Contains(line, recordMarker)
}

// ParseRecord parses a single snapshot line. Every failure wraps types.ErrMalformedRecord.
func ParseRecord(line string) (types.StakeSnapshot, error) {
	m := recordPattern.FindStringSubmatch(line)
	if m == nil {
		return types.StakeSnapshot{}, fmt.Errorf("%w: line does not match snapshot pattern", types.ErrMalformedRecord)
	}

	ts, err := time.ParseInLocation(timestampLayout, m[1], time.UTC)
	if err != nil {
		return types.StakeSnapshot{}, fmt.Errorf("%w: invalid timestamp %q: %w", types.ErrMalformedRecord, m[1], err)
	}

	block, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return types.StakeSnapshot{}, fmt.Errorf("%w: invalid block %q: %w", types.ErrMalformedRecord, m[2], err)
	}

	dec := json.NewDecoder(strings.NewReader(m[4]))
	dec.UseNumber()
	var info delegateInfo
	if err := dec.Decode(&info); err != nil {
		return types.StakeSnapshot{}, fmt.Errorf("%w: block %d: invalid delegate info: %w", types.ErrMalformedRecord, block, err)
	}

	snap := types.StakeSnapshot{
		Timestamp:   ts,
		BlockNumber: block,
		Hotkey:      m[3],
	}

	for _, f := range []struct {
		name string
		raw  json.Number
		dst  *decimal.Decimal
	}{
		{"total_stake", info.TotalStake, &snap.TotalStake},
		{"total_daily_return", info.TotalDailyReturn, &snap.TotalDailyReturn},
		{"take", info.Take, &snap.Take},
	} {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw.String())
		if err != nil {
			return types.StakeSnapshot{}, fmt.Errorf("%w: block %d: invalid %s: %w", types.ErrMalformedRecord, block, f.name, err)
		}
		*f.dst = v
	}

	for i, pair := range info.Nominators {
		addr, value, err := parsePair(pair)
		if err != nil {
			return types.StakeSnapshot{}, fmt.Errorf("%w: block %d: nominators[%d]: %w", types.ErrMalformedRecord, block, i, err)
		}
		snap.Nominators = append(snap.Nominators, types.NominatorStake{Address: addr, Stake: value})
	}

	for i, pair := range info.NominatorsPercent {
		addr, value, err := parsePair(pair)
		if err != nil {
			return types.StakeSnapshot{}, fmt.Errorf("%w: block %d: nominators_percent[%d]: %w", types.ErrMalformedRecord, block, i, err)
		}
		if value.IsNegative() {
			return types.StakeSnapshot{}, fmt.Errorf("%w: block %d: negative percent for %s", types.ErrMalformedRecord, block, addr)
		}
		percent, err := utils.LegacyDecFromDecimal(value)
		if err != nil {
			return types.StakeSnapshot{}, fmt.Errorf("%w: block %d: %w", types.ErrMalformedRecord, block, err)
		}
		snap.NominatorShares = append(snap.NominatorShares, types.NominatorShare{Address: addr, Percent: percent})
	}

	return snap, nil
}

// parsePair decodes an [address, number] json pair
func parsePair(pair []any) (string, decimal.Decimal, error) {
	if len(pair) != 2 {
		return "", decimal.Decimal{}, fmt.Errorf("expected [address, value] pair, got %d elements", len(pair))
	}
	addr, ok := pair[0].(string)
	if !ok || addr == "" {
		return "", decimal.Decimal{}, fmt.Errorf("address must be a non-empty string")
	}
	num, ok := pair[1].(json.Number)
	if !ok {
		return "", decimal.Decimal{}, fmt.Errorf("value for %s must be a number", addr)
	}
	value, err := decimal.NewFromString(num.String())
	if err != nil {
		return "", decimal.Decimal{}, fmt.Errorf("value for %s: %w", addr, err)
	}
	return addr, value, nil
}
