package coboost

// chdata.go loads feature columns through github.com/invertedv/chutils, which
// reads delimited text files and ClickHouse tables.

import (
	"fmt"
	"io"
	"os"

	"github.com/invertedv/chutils"
	cf "github.com/invertedv/chutils/file"
)

// SourcesFromReader pulls all columns of rdr into a SourceMap.  Date, string
// and fixed-string fields become categorical sources; everything else becomes
// numeric.
func SourcesFromReader(rdr chutils.Input) (SourceMap, error) {
	nRow, err := rdr.CountLines()
	if err != nil {
		return nil, Wrapper(ErrChData, fmt.Sprintf("SourcesFromReader: %s", err.Error()))
	}

	fds := rdr.TableSpec().FieldDefs

	names := make([]string, len(fds))
	isCat := make([]bool, len(fds))
	numeric := make([][]float64, len(fds))
	labels := make([][]string, len(fds))

	for ind := 0; ind < len(fds); ind++ {
		names[ind] = fds[ind].Name

		switch fds[ind].ChSpec.Base {
		case chutils.ChDate, chutils.ChString, chutils.ChFixedString:
			isCat[ind] = true
			labels[ind] = make([]string, 0, nRow)
		default:
			numeric[ind] = make([]float64, 0, nRow)
		}
	}

	for row := 0; ; row++ {
		r, _, e := rdr.Read(1, true)

		if e == io.EOF {
			if Verbose {
				fmt.Println("rows read: ", row)
			}

			break
		}

		if e != nil {
			return nil, Wrapper(ErrChData, fmt.Sprintf("SourcesFromReader: row %d: %s", row, e.Error()))
		}

		for c := 0; c < len(fds); c++ {
			if isCat[c] {
				labels[c] = append(labels[c], fmt.Sprintf("%v", r[0][c]))
				continue
			}

			v, ok := toFloat(r[0][c])
			if !ok {
				return nil, Wrapper(ErrChData, fmt.Sprintf("SourcesFromReader: field %s is not numeric at row %d", names[c], row))
			}

			numeric[c] = append(numeric[c], v)
		}
	}

	srcs := make([]*FeatureSource, 0, len(fds))

	for ind, nm := range names {
		var (
			src *FeatureSource
			e   error
		)

		if isCat[ind] {
			src, e = NewCategoricalSource(nm, labels[ind])
		} else {
			src, e = NewNumericSource(nm, numeric[ind])
		}

		if e != nil {
			return nil, Wrapper(e, "SourcesFromReader")
		}

		srcs = append(srcs, src)
	}

	return NewSourceMap(srcs...)
}

// SourcesFromCSV reads a delimited file into a SourceMap, imputing field types
// from the data.
func SourcesFromCSV(fileName string, separator rune) (SourceMap, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, Wrapper(ErrChData, fmt.Sprintf("SourcesFromCSV: %s", err.Error()))
	}

	defer func() { _ = f.Close() }()

	rdr := cf.NewReader(fileName, separator, '\n', 0, 0, 1, 0, f, 0)

	if e := rdr.Init("", chutils.MergeTree); e != nil {
		return nil, Wrapper(ErrChData, fmt.Sprintf("SourcesFromCSV: %s", e.Error()))
	}

	if e := rdr.TableSpec().Impute(rdr, 0, .99); e != nil {
		return nil, Wrapper(ErrChData, fmt.Sprintf("SourcesFromCSV: %s", e.Error()))
	}

	return SourcesFromReader(rdr)
}

// toFloat converts the scalar types chutils produces to float64.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
