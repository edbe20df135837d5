package seqio

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/cdnet/internal/models"
)

// writeArrow writes one record batch holding a float64 column per sequence.
// All sequences must have the same length.
func writeArrow(w io.Writer, seqs map[string][]float64) error {
	if _, err := CheckLengths(seqs); err != nil {
		return err
	}

	names := Names(seqs)
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64}
	}
	schema := arrow.NewSchema(fields, nil)

	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for i, name := range names {
		b.Field(i).(*array.Float64Builder).AppendValues(seqs[name], nil)
	}
	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

// readArrow concatenates every record batch of an IPC stream column by
// column. Columns must be non-null float64.
func readArrow(r io.Reader) (map[string][]float64, error) {
	mem := memory.NewGoAllocator()
	ir, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("opening arrow stream: %w", err)
	}
	defer ir.Release()

	schema := ir.Schema()
	seqs := make(map[string][]float64, len(schema.Fields()))
	for _, f := range schema.Fields() {
		if _, dup := seqs[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", models.ErrShapeMismatch, f.Name)
		}
		if f.Type.ID() != arrow.FLOAT64 {
			return nil, fmt.Errorf("column %q has type %s, want float64", f.Name, f.Type)
		}
		seqs[f.Name] = []float64{}
	}

	for ir.Next() {
		rec := ir.Record()
		for i, f := range schema.Fields() {
			col, ok := rec.Column(i).(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("column %q is not float64", f.Name)
			}
			if col.NullN() > 0 {
				return nil, fmt.Errorf("column %q has %d null samples", f.Name, col.NullN())
			}
			seqs[f.Name] = append(seqs[f.Name], col.Float64Values()...)
		}
	}
	if err := ir.Err(); err != nil {
		return nil, fmt.Errorf("reading arrow stream: %w", err)
	}
	return seqs, nil
}
