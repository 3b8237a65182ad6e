package referral

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/utils"
)

const (
	colLayer    = 0
	colReferrer = 1
	colTax      = 2
	// referee columns start here and run to the end of the row
	colFirstReferee = 3
)

// Load reads and validates the referral table at path
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: referral table %s: %w", types.ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a table with the header "Layer,Referrer,Tax,Referee 1,...,Referee N".
// Layers are written as "L<n>" and empty referee cells are ignored.
func Parse(r io.Reader) (*Graph, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return New(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read referral header: %w", err)
	}
	if len(header) < colFirstReferee {
		return nil, fmt.Errorf("%w: header needs Layer, Referrer and Tax columns", types.ErrInvalidReferralStructure)
	}

	var edges []Edge
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read referral row %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}
		if len(row) < colFirstReferee {
			return nil, fmt.Errorf("%w: row %d has %d columns", types.ErrInvalidReferralStructure, line, len(row))
		}

		layer, err := ParseLayer(row[colLayer])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", types.ErrInvalidReferralStructure, line, err)
		}

		tax, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(row[colTax]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid tax %q: %w", types.ErrInvalidReferralStructure, line, row[colTax], err)
		}

		var referees []string
		for _, cell := range row[colFirstReferee:] {
			if name := strings.TrimSpace(cell); name != "" {
				referees = append(referees, name)
			}
		}

		edges = append(edges, Edge{
			Layer:    layer,
			Referrer: strings.TrimSpace(row[colReferrer]),
			TaxRate:  tax,
			Referees: referees,
		})
	}

	return New(edges)
}

// ParseLayer accepts "L3", "l3" or "3"
func ParseLayer(s string) (int, error) {
	s = strings.TrimSpace(s)
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "L"), "l")
	layer, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid layer %q", s)
	}
	return layer, nil
}

// Write renders g in the format Parse reads. Rows are ordered by layer, keeping
// table order within a layer, and referees are sorted by name.
func Write(w io.Writer, g *Graph) error {
	edges := g.Edges()
	slices.SortStableFunc(edges, func(a, b Edge) int { return a.Layer - b.Layer })

	width := 1
	for _, e := range edges {
		width = max(width, len(e.Referees))
	}

	header := []string{"Layer", "Referrer", "Tax"}
	for i := 1; i <= width; i++ {
		header = append(header, fmt.Sprintf("Referee %d", i))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range edges {
		row := make([]string, colFirstReferee+width)
		row[colLayer] = fmt.Sprintf("L%d", e.Layer)
		row[colReferrer] = e.Referrer
		row[colTax] = utils.DecimalFromLegacyDec(e.TaxRate).String()

		referees := slices.Clone(e.Referees)
		slices.Sort(referees)
		copy(row[colFirstReferee:], referees)

		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes g to path, replacing the previous table only once it is fully written
func Save(path string, g *Graph) error {
	var buf bytes.Buffer
	if err := Write(&buf, g); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
