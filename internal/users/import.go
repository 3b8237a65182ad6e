package users

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/delegate-rewards/referral-payout/internal/types"
)

type ImportMode string

const (
	ImportAppend  ImportMode = "append"
	ImportReplace ImportMode = "replace"
)

// InvalidAddressesError lists every rejected address of an import, per user
type InvalidAddressesError struct {
	Invalid map[string][]string
}

func (e *InvalidAddressesError) Error() string {
	var parts []string
	for _, user := range sortedKeys(e.Invalid) {
		parts = append(parts, fmt.Sprintf("%s: %s", user, strings.Join(e.Invalid[user], ", ")))
	}
	return fmt.Sprintf("%s: %s", types.ErrInvalidAddress, strings.Join(parts, "; "))
}

func (e *InvalidAddressesError) Is(target error) bool {
	return target == types.ErrInvalidAddress
}

// ImportCSV reads rows of "username,address1,address2,..." after a header row and
// merges them into existing according to mode. Nothing is imported if any address is invalid.
func ImportCSV(r io.Reader, existing *Registry, mode ImportMode) (*Registry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read user csv: %w", err)
	}

	imported := make(map[string][]string)
	invalid := make(map[string][]string)
	for i, row := range rows {
		// header
		if i == 0 {
			continue
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		name := row[0]
		for _, addr := range row[1:] {
			if addr == "" {
				continue
			}
			if !IsValidAddress(addr) {
				invalid[name] = append(invalid[name], addr)
				continue
			}
			imported[name] = append(imported[name], addr)
		}
		if _, ok := imported[name]; !ok {
			imported[name] = nil
		}
	}

	if len(invalid) > 0 {
		return nil, &InvalidAddressesError{Invalid: invalid}
	}

	switch mode {
	case ImportReplace:
		return New(fromMap(imported))
	case ImportAppend:
	default:
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}

	if existing == nil {
		return nil, errors.New("append requires an existing registry")
	}

	merged := make(map[string][]string, existing.Len()+len(imported))
	for _, acc := range existing.Accounts() {
		merged[acc.Name] = slices.Clone(acc.Addresses)
	}
	for name, addrs := range imported {
		for _, addr := range addrs {
			if !slices.Contains(merged[name], addr) {
				merged[name] = append(merged[name], addr)
			}
		}
		if _, ok := merged[name]; !ok {
			merged[name] = nil
		}
	}

	return New(fromMap(merged))
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
