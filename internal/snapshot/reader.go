package snapshot

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/rs/zerolog/log"
	conciter "github.com/sourcegraph/conc/iter"
)

// a single snapshot record with the full nominator list can get large
const maxRecordSize = 16 * 1024 * 1024

type Reader struct {
	source  Source
	workers int
}

func NewReader(source Source, workers int) *Reader {
	if workers <= 0 {
		workers = 1
	}
	return &Reader{source: source, workers: workers}
}

type rawRecord struct {
	lineNo int
	text   string
}

type parseResult struct {
	lineNo   int
	snapshot types.StakeSnapshot
	err      error
}

// Read loads every snapshot of the source, parsing records concurrently, and
// returns them ordered by block number. Blocks at or below afterBlock are dropped.
// Malformed records are logged and counted but never abort the read.
func (r *Reader) Read(ctx context.Context, afterBlock *uint64) (*Sequence, error) {
	log := log.Ctx(ctx)

	rc, err := r.source.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var records []rawRecord
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !isRecord(line) {
			continue
		}
		records = append(records, rawRecord{lineNo: lineNo, text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", types.ErrSourceUnavailable, r.source.Name(), err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Map keeps input order, so results come back in log order whatever the fan-out
	mapper := conciter.Mapper[rawRecord, parseResult]{MaxGoroutines: r.workers}
	results := mapper.Map(records, func(rec *rawRecord) parseResult {
		snap, err := ParseRecord(rec.text)
		return parseResult{lineNo: rec.lineNo, snapshot: snap, err: err}
	})

	seq := &Sequence{}
	for _, res := range results {
		if res.err != nil {
			seq.malformed++
			log.Warn().
				Err(res.err).
				Int("line", res.lineNo).
				Str("source", r.source.Name()).
				Msg("skipping malformed snapshot record")
			continue
		}
		if afterBlock != nil && res.snapshot.BlockNumber <= *afterBlock {
			continue
		}
		seq.snapshots = append(seq.snapshots, res.snapshot)
	}

	slices.SortStableFunc(seq.snapshots, byBlock)

	metrics.RecordMalformedSnapshots(seq.malformed)
	log.Debug().
		Int("snapshots", len(seq.snapshots)).
		Int("malformed", seq.malformed).
		Str("source", r.source.Name()).
		Msg("Snapshot log read")

	return seq, nil
}

// LatestBlock returns the highest block found in the source
func (r *Reader) LatestBlock(ctx context.Context) (uint64, bool, error) {
	seq, err := r.Read(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	last, ok := seq.Last()
	return last.BlockNumber, ok, nil
}

// Sequence is a finite, block ascending run of snapshots
type Sequence struct {
	snapshots []types.StakeSnapshot
	malformed int
}

// NewSequence builds a sequence from already parsed snapshots, sorting them by block
func NewSequence(snapshots []types.StakeSnapshot) *Sequence {
	s := slices.Clone(snapshots)
	slices.SortStableFunc(s, byBlock)
	return &Sequence{snapshots: s}
}

func byBlock(a, b types.StakeSnapshot) int {
	return cmp.Compare(a.BlockNumber, b.BlockNumber)
}

func (s *Sequence) All() iter.Seq[types.StakeSnapshot] {
	return func(yield func(types.StakeSnapshot) bool) {
		for _, snap := range s.snapshots {
			if !yield(snap) {
				return
			}
		}
	}
}

func (s *Sequence) Len() int {
	return len(s.snapshots)
}

// Malformed is the number of records skipped while reading
func (s *Sequence) Malformed() int {
	return s.malformed
}

func (s *Sequence) First() (types.StakeSnapshot, bool) {
	if len(s.snapshots) == 0 {
		return types.StakeSnapshot{}, false
	}
	return s.snapshots[0], true
}

func (s *Sequence) Last() (types.StakeSnapshot, bool) {
	if len(s.snapshots) == 0 {
		return types.StakeSnapshot{}, false
	}
	return s.snapshots[len(s.snapshots)-1], true
}
