package contracts

import "context"

// MarketDataProvider returns daily bars for one symbol.
// End-bound inclusivity is provider-defined; callers request one day past today.
// ⭐ SSOT: 외부 시세 제공자 인터페이스
type MarketDataProvider interface {
	GetDailyBars(ctx context.Context, symbol InstrumentID, start, end Date) ([]PriceBar, error)
}

// BlobSink stores a named payload, replacing any previous payload under that name
// ⭐ SSOT: 파티션/아티팩트 저장 인터페이스
type BlobSink interface {
	Put(ctx context.Context, name string, payload []byte) error
}

// Blob is one named payload of a batch
type Blob struct {
	Name    string
	Payload []byte
}

// BatchBlobSink publishes a batch all-or-nothing: after an error every
// name in the batch still holds its previous payload (or is still absent).
type BatchBlobSink interface {
	BlobSink
	PutBatch(ctx context.Context, blobs []Blob) error
}

// BlobRemover deletes an artifact; removing a missing name is not an error
type BlobRemover interface {
	Remove(ctx context.Context, name string) error
}

// ReportSink receives the mover report for operator visibility
// ⭐ SSOT: 리포트 발행 인터페이스
type ReportSink interface {
	Emit(ctx context.Context, meta RunMeta, report MoverReport) error
}
