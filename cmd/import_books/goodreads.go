package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Goodreads export columns.
const (
	colTitle     = 1
	colAuthor    = 2
	colDateAdded = 15
	colShelf     = 18
)

const goodreadsDate = "2006/01/02"

type exportRow struct {
	Line      int
	Title     string
	Author    string
	Shelf     string
	DateAdded time.Time
}

// readGoodreads parses a Goodreads library export. Rows are returned oldest
// first so the waiting list keeps the order the books were shelved in. When
// shelf is non-empty only rows on that exclusive shelf are kept.
func readGoodreads(r io.Reader, shelf string) ([]exportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]exportRow, 0, len(records)-1)
	// starts at 1 to skip the header
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) <= colAuthor {
			continue
		}
		row := exportRow{
			Line:   i + 1,
			Title:  strings.TrimSpace(rec[colTitle]),
			Author: strings.TrimSpace(rec[colAuthor]),
		}
		if len(rec) > colShelf {
			row.Shelf = strings.TrimSpace(rec[colShelf])
		}
		if shelf != "" && !strings.EqualFold(row.Shelf, shelf) {
			continue
		}
		if len(rec) > colDateAdded {
			if t, err := time.Parse(goodreadsDate, strings.TrimSpace(rec[colDateAdded])); err == nil {
				row.DateAdded = t
			}
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DateAdded.Before(rows[j].DateAdded)
	})
	return rows, nil
}
