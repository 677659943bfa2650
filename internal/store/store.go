package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/logger"
)

// Store persists indicator rows partitioned by calendar date.
// It keeps the run's partition state so a later Write to the same date
// merges with earlier rows (last writer wins per instrument) before the
// artifact is rewritten whole.
// ⭐ SSOT: 파티션 저장은 이 패키지에서만
type Store struct {
	mu         sync.Mutex
	sink       contracts.BlobSink
	layout     Layout
	encoder    Encoder
	partitions map[contracts.Date]map[contracts.InstrumentID]contracts.IndicatorRow
	logger     *logger.Logger
}

// New creates a Store writing through sink
func New(sink contracts.BlobSink, layout Layout, encoder Encoder, log *logger.Logger) (*Store, error) {
	if sink == nil {
		return nil, fmt.Errorf("store: nil sink")
	}
	layout, err := ParseLayout(string(layout))
	if err != nil {
		return nil, err
	}
	if encoder == nil {
		encoder = CSVEncoder{}
	}
	return &Store{
		sink:       sink,
		layout:     layout,
		encoder:    encoder,
		partitions: make(map[contracts.Date]map[contracts.InstrumentID]contracts.IndicatorRow),
		logger:     log.WithModule("store"),
	}, nil
}

// Layout returns the partition layout in use
func (s *Store) Layout() Layout {
	return s.layout
}

// Write merges rows into partition state and persists every touched
// partition. It returns the artifact names written, sorted.
//
// Every artifact is encoded before the first write and the set is
// published all-or-nothing: on error no touched partition changes, in the
// sink or in the partition state.
func (s *Store) Write(ctx context.Context, rows []contracts.IndicatorRow) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, touched := s.merge(rows)

	dates := make([]contracts.Date, 0, len(next))
	for d := range next {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var blobs []contracts.Blob
	for _, date := range dates {
		encoded, err := s.encode(date, next[date], touched[date])
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, encoded...)
	}

	if err := s.publish(ctx, blobs); err != nil {
		return nil, err
	}
	for date, part := range next {
		s.partitions[date] = part
	}

	written := make([]string, len(blobs))
	for i, b := range blobs {
		written[i] = b.Name
	}
	sort.Strings(written)

	s.logger.WithFields(map[string]interface{}{
		"rows":       len(rows),
		"partitions": len(dates),
		"artifacts":  len(written),
		"layout":     s.layout,
		"format":     s.encoder.Format(),
	}).Info("Partitions written")

	return written, nil
}

// merge returns copies of the touched partitions with rows applied
func (s *Store) merge(rows []contracts.IndicatorRow) (map[contracts.Date]map[contracts.InstrumentID]contracts.IndicatorRow, map[contracts.Date]map[contracts.InstrumentID]bool) {
	next := make(map[contracts.Date]map[contracts.InstrumentID]contracts.IndicatorRow)
	touched := make(map[contracts.Date]map[contracts.InstrumentID]bool)

	for _, r := range rows {
		part, ok := next[r.Date]
		if !ok {
			part = make(map[contracts.InstrumentID]contracts.IndicatorRow, len(s.partitions[r.Date])+1)
			for id, prev := range s.partitions[r.Date] {
				part[id] = prev
			}
			next[r.Date] = part
			touched[r.Date] = make(map[contracts.InstrumentID]bool)
		}
		part[r.Instrument] = r
		touched[r.Date][r.Instrument] = true
	}
	return next, touched
}

// encode renders the artifacts of one partition under the store layout
func (s *Store) encode(date contracts.Date, part map[contracts.InstrumentID]contracts.IndicatorRow, instruments map[contracts.InstrumentID]bool) ([]contracts.Blob, error) {
	rows := sortedRows(part)
	ext := s.encoder.Extension()

	if s.layout == LayoutInstrument {
		var blobs []contracts.Blob
		for _, r := range rows {
			if !instruments[r.Instrument] {
				continue
			}
			b, err := s.blob(InstrumentName(date, r.Instrument, ext), []contracts.IndicatorRow{r})
			if err != nil {
				return nil, err
			}
			blobs = append(blobs, b)
		}
		return blobs, nil
	}

	b, err := s.blob(DailyName(date, ext), rows)
	if err != nil {
		return nil, err
	}
	return []contracts.Blob{b}, nil
}

func (s *Store) blob(name string, rows []contracts.IndicatorRow) (contracts.Blob, error) {
	payload, err := s.encoder.Encode(rows)
	if err != nil {
		return contracts.Blob{}, fmt.Errorf("encode partition %s: %w", name, err)
	}
	return contracts.Blob{Name: name, Payload: payload}, nil
}

// publish writes blobs through a batch sink when available. A plain sink
// gets sequential puts; on failure the artifacts already put are removed
// when the sink supports it, which restores absence rather than an older payload.
func (s *Store) publish(ctx context.Context, blobs []contracts.Blob) error {
	if len(blobs) == 0 {
		return nil
	}
	if batch, ok := s.sink.(contracts.BatchBlobSink); ok {
		if err := batch.PutBatch(ctx, blobs); err != nil {
			return fmt.Errorf("persist partitions: %w", err)
		}
		return nil
	}

	for i, b := range blobs {
		if err := s.sink.Put(ctx, b.Name, b.Payload); err != nil {
			s.undo(ctx, blobs[:i])
			return fmt.Errorf("persist partition %s: %w", b.Name, err)
		}
		s.logger.WithFields(map[string]interface{}{
			"artifact": b.Name,
			"bytes":    len(b.Payload),
		}).Debug("Partition persisted")
	}
	return nil
}

// undo removes artifacts put before a failed write
func (s *Store) undo(ctx context.Context, put []contracts.Blob) {
	if len(put) == 0 {
		return
	}
	remover, ok := s.sink.(contracts.BlobRemover)
	if !ok {
		s.logger.WithField("artifacts", len(put)).Error("Sink cannot remove artifacts, partial partitions left behind")
		return
	}

	// 실행이 취소되어도 정리는 끝까지 수행
	ctx = context.WithoutCancel(ctx)
	for _, b := range put {
		if err := remover.Remove(ctx, b.Name); err != nil {
			s.logger.WithError(err).WithField("artifact", b.Name).Error("Failed to remove partial partition")
		}
	}
}

// Partitions returns the current partition state sorted by date, rows by instrument
func (s *Store) Partitions() []contracts.DailyPartition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.DailyPartition, 0, len(s.partitions))
	for date, part := range s.partitions {
		out = append(out, contracts.DailyPartition{Date: date, Rows: sortedRows(part)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func sortedRows(part map[contracts.InstrumentID]contracts.IndicatorRow) []contracts.IndicatorRow {
	rows := make([]contracts.IndicatorRow, 0, len(part))
	for _, r := range part {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Instrument < rows[j].Instrument })
	return rows
}
