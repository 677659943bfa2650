package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/wonny/movers/internal/contracts"
)

// ErrUnknownFormat is returned for an unsupported partition format
var ErrUnknownFormat = errors.New("unknown partition format")

// Encoder turns one partition's rows into an artifact payload
type Encoder interface {
	Format() string
	Extension() string
	Encode(rows []contracts.IndicatorRow) ([]byte, error)
}

// NewEncoder returns the encoder for format (csv, parquet)
func NewEncoder(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVEncoder{}, nil
	case "parquet":
		return ParquetEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (use csv or parquet)", ErrUnknownFormat, format)
	}
}

// CSVHeader is the column order of every CSV partition
var CSVHeader = []string{
	"date", "instrument", "open", "high", "low", "close", "volume",
	"moving_average", "volatility", "period_return",
}

// CSVEncoder writes a header row and one line per row; absent values are empty cells
type CSVEncoder struct{}

func (CSVEncoder) Format() string    { return "csv" }
func (CSVEncoder) Extension() string { return "csv" }

func (CSVEncoder) Encode(rows []contracts.IndicatorRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Date.String(),
			string(r.Instrument),
			r.Open.String(),
			r.High.String(),
			r.Low.String(),
			r.Close.String(),
			strconv.FormatInt(r.Volume, 10),
			nullStr(r.MovingAverage),
			nullStr(r.Volatility),
			nullStr(r.PeriodReturn),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCSV parses a CSV partition back into rows
func DecodeCSV(data []byte) ([]contracts.IndicatorRow, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: missing header")
	}
	if strings.Join(records[0], ",") != strings.Join(CSVHeader, ",") {
		return nil, fmt.Errorf("read csv: unexpected header %v", records[0])
	}

	rows := make([]contracts.IndicatorRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		row, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(rec []string) (contracts.IndicatorRow, error) {
	var row contracts.IndicatorRow
	var err error

	if row.Date, err = contracts.ParseDate(rec[0]); err != nil {
		return row, err
	}
	row.Instrument = contracts.InstrumentID(rec[1])
	prices := []*decimal.Decimal{&row.Open, &row.High, &row.Low, &row.Close}
	for i, dst := range prices {
		if *dst, err = decimal.NewFromString(rec[2+i]); err != nil {
			return row, fmt.Errorf("column %s: %w", CSVHeader[2+i], err)
		}
	}
	if row.Volume, err = strconv.ParseInt(rec[6], 10, 64); err != nil {
		return row, fmt.Errorf("column volume: %w", err)
	}
	optional := []*decimal.NullDecimal{&row.MovingAverage, &row.Volatility, &row.PeriodReturn}
	for i, dst := range optional {
		if rec[7+i] == "" {
			continue
		}
		d, err := decimal.NewFromString(rec[7+i])
		if err != nil {
			return row, fmt.Errorf("column %s: %w", CSVHeader[7+i], err)
		}
		*dst = decimal.NewNullDecimal(d)
	}
	return row, nil
}

func nullStr(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// parquetRow is the on-disk parquet schema; indicator columns are optional
type parquetRow struct {
	Date          string   `parquet:"date"`
	Instrument    string   `parquet:"instrument"`
	Open          float64  `parquet:"open"`
	High          float64  `parquet:"high"`
	Low           float64  `parquet:"low"`
	Close         float64  `parquet:"close"`
	Volume        int64    `parquet:"volume"`
	MovingAverage *float64 `parquet:"moving_average,optional"`
	Volatility    *float64 `parquet:"volatility,optional"`
	PeriodReturn  *float64 `parquet:"period_return,optional"`
}

// ParquetEncoder writes a parquet file per partition
type ParquetEncoder struct{}

func (ParquetEncoder) Format() string    { return "parquet" }
func (ParquetEncoder) Extension() string { return "parquet" }

func (ParquetEncoder) Encode(rows []contracts.IndicatorRow) ([]byte, error) {
	out := make([]parquetRow, len(rows))
	for i, r := range rows {
		out[i] = parquetRow{
			Date:          r.Date.String(),
			Instrument:    string(r.Instrument),
			Open:          r.Open.InexactFloat64(),
			High:          r.High.InexactFloat64(),
			Low:           r.Low.InexactFloat64(),
			Close:         r.Close.InexactFloat64(),
			Volume:        r.Volume,
			MovingAverage: nullFloat(r.MovingAverage),
			Volatility:    nullFloat(r.Volatility),
			PeriodReturn:  nullFloat(r.PeriodReturn),
		}
	}

	var buf bytes.Buffer
	if err := parquet.Write(&buf, out); err != nil {
		return nil, fmt.Errorf("write parquet: %w", err)
	}
	return buf.Bytes(), nil
}

func nullFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
