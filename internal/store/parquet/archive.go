// Package parquet archives finalized intraday sessions as one Parquet file
// per (date, symbol) under a root directory.
package parquet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"quoteserve/internal/model"
)

// Row is one archived session minute.
type Row struct {
	Symbol string  `parquet:"symbol"`
	Date   string  `parquet:"date"`
	TS     int64   `parquet:"ts"` // unix seconds
	Price  float64 `parquet:"price"`
	Volume float64 `parquet:"volume"`
	Filled bool    `parquet:"filled"`
}

// Archiver writes sessions below Dir. It implements model.SessionArchiver.
type Archiver struct {
	Dir string
}

// New creates an archiver rooted at dir.
func New(dir string) *Archiver {
	return &Archiver{Dir: dir}
}

// Path returns the file a session is archived to.
func (a *Archiver) Path(symbol, date string) string {
	return filepath.Join(a.Dir, date, symbol+".parquet")
}

// Archive writes s, replacing any earlier archive of the same session.
func (a *Archiver) Archive(s model.IntradaySeries) error {
	path := a.Path(s.Symbol, s.SessionDate)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive mkdir: %w", err)
	}

	rows := make([]Row, len(s.Points))
	for i, p := range s.Points {
		rows[i] = Row{
			Symbol: s.Symbol,
			Date:   s.SessionDate,
			TS:     p.TS.Unix(),
			Price:  p.Price,
			Volume: p.Volume,
			Filled: p.Filled,
		}
	}

	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		return fmt.Errorf("archive write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("archive rename %s: %w", path, err)
	}
	return nil
}

// Load reads an archived session back.
func (a *Archiver) Load(symbol, date string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](a.Path(symbol, date))
	if err != nil {
		return nil, fmt.Errorf("archive read %s %s: %w", symbol, date, err)
	}
	return rows, nil
}
