package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

const (
	FEATURES_FILE = "x.csv"
	LABELS_FILE   = "y.csv"
)

var ErrEmptyMatrix = errors.New("matrix has no rows")

// WriteMatrix writes one CSV record per row.
func WriteMatrix(w io.Writer, m *mat.Dense) error {
	rows, cols := m.Dims()
	cw := csv.NewWriter(w)
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMatrix reads a matrix written by WriteMatrix. Every record must have the
// same number of fields.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrEmptyMatrix
	}

	rows, cols := len(records), len(records[0])
	data := make([]float64, 0, rows*cols)
	for i, record := range records {
		for j, field := range record {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			data = append(data, val)
		}
	}
	return mat.NewDense(rows, cols, data), nil
}

// SaveTrainingMatrix writes features and labels to x.csv and y.csv in dir,
// creating dir if needed.
func SaveTrainingMatrix(dir string, x, y *mat.Dense) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeMatrixFile(filepath.Join(dir, FEATURES_FILE), x); err != nil {
		return err
	}
	return writeMatrixFile(filepath.Join(dir, LABELS_FILE), y)
}

// LoadTrainingMatrix reads the features and labels written by SaveTrainingMatrix.
func LoadTrainingMatrix(dir string) (x, y *mat.Dense, err error) {
	if x, err = readMatrixFile(filepath.Join(dir, FEATURES_FILE)); err != nil {
		return
	}
	y, err = readMatrixFile(filepath.Join(dir, LABELS_FILE))
	return
}

func writeMatrixFile(path string, m *mat.Dense) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	err = WriteMatrix(f, m)
	return
}

func readMatrixFile(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ReadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
