package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/shopspring/decimal"
)

var csvHeader = []string{"Username", "Address", "Amount", "StartBlock", "EndBlock", "PoolTotal"}

const (
	colUser = iota
	colAddress
	colAmount
	colStartBlock
	colEndBlock
	colPoolTotal
)

// CSVStore keeps the ledger in a csv file. The caller holds the run lock, so a
// single writer is assumed.
type CSVStore struct {
	path string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) Append(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	writeHeader := false
	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		writeHeader = true
	case err != nil:
		return err
	case info.Size() == 0:
		writeHeader = true
	}

	// rows are rendered up front so the file sees a single write
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range batch.Records {
		row := []string{
			r.User,
			r.Address,
			r.Amount.String(),
			strconv.FormatUint(r.StartBlock, 10),
			strconv.FormatUint(r.EndBlock, 10),
			r.PoolTotal.String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *CSVStore) LastRecord(ctx context.Context) (*types.PayoutRecord, error) {
	records, err := s.Records(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *CSVStore) Records(ctx context.Context, limit int) ([]types.PayoutRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var records []types.PayoutRecord
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ledger %s line %d: %w", s.path, line, err)
		}
		if line == 1 && row[colUser] == csvHeader[colUser] {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("ledger %s line %d: %w", s.path, line, err)
		}
		records = append(records, rec)
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func parseRow(row []string) (types.PayoutRecord, error) {
	if len(row) != len(csvHeader) {
		return types.PayoutRecord{}, fmt.Errorf("expected %d columns, got %d", len(csvHeader), len(row))
	}

	amount, err := decimal.NewFromString(row[colAmount])
	if err != nil {
		return types.PayoutRecord{}, fmt.Errorf("invalid amount: %w", err)
	}
	start, err := strconv.ParseUint(row[colStartBlock], 10, 64)
	if err != nil {
		return types.PayoutRecord{}, fmt.Errorf("invalid start block: %w", err)
	}
	end, err := strconv.ParseUint(row[colEndBlock], 10, 64)
	if err != nil {
		return types.PayoutRecord{}, fmt.Errorf("invalid end block: %w", err)
	}
	pool, err := decimal.NewFromString(row[colPoolTotal])
	if err != nil {
		return types.PayoutRecord{}, fmt.Errorf("invalid pool total: %w", err)
	}

	return types.PayoutRecord{
		User:       row[colUser],
		Address:    row[colAddress],
		Amount:     amount,
		StartBlock: start,
		EndBlock:   end,
		PoolTotal:  pool,
	}, nil
}
