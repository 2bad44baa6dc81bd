// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package table formats data into a text-based table for human consumption.
package table

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ebay/fedx/util/cmp"
	"golang.org/x/text/unicode/norm"
)

// Options control how the table is generated.
type Options int

const (
	// HeaderRow formats the first row as a header, with a divider between it
	// and the next row.
	HeaderRow Options = 1 << iota
	// FooterRow formats the last row as a footer, with a divider between it
	// and the previous row.
	FooterRow
	// SkipEmpty generates nothing when the table has no rows besides the
	// header and footer rows.
	SkipEmpty
	// RightJustify pads cells on the left rather than the right.
	RightJustify
	// Numbered adds a first column holding the number of each data row,
	// starting at 1.
	Numbered
	// Truncate shortens lines longer than MaxLineWidth, ending them with an
	// ellipsis.
	Truncate
)

// MaxLineWidth is the longest line kept in a cell with the Truncate option.
const MaxLineWidth = 60

func (o Options) has(flag Options) bool {
	return o&flag != 0
}

func (o Options) numberOfChromeRows() int {
	r := 0
	if o.has(HeaderRow) {
		r++
	}
	if o.has(FooterRow) {
		r++
	}
	return r
}

// PrettyPrint writes 't' as a nicely formatted table to the supplied Writer.
// Cells may span several lines, separated by \n. Every row must have the same
// number of cells.
func PrettyPrint(dest io.Writer, t [][]string, opts Options) {
	if len(t) == 0 || (opts.has(SkipEmpty) && len(t) <= opts.numberOfChromeRows()) {
		return
	}
	table := make([][]cell, len(t))
	for ridx, row := range t {
		if opts.has(Numbered) {
			row = append([]string{rowNumber(opts, ridx, len(t))}, row...)
		}
		table[ridx] = make([]cell, len(row))
		for cidx, c := range row {
			table[ridx][cidx] = makeCell(c, opts.has(Truncate))
		}
	}
	widths := make([]int, len(table[0]))
	for _, r := range table {
		for cidx := range widths {
			widths[cidx] = cmp.MaxInt(widths[cidx], r[cidx].width)
		}
	}

	w := bufio.NewWriterSize(dest, 256)
	defer w.Flush()
	divider := func() {
		for _, width := range widths {
			w.WriteByte(' ')
			w.WriteString(strings.Repeat("-", width))
			w.WriteString(" |")
		}
		w.WriteByte('\n')
	}
	for ridx, r := range table {
		height := 0
		for _, c := range r {
			height = cmp.MaxInt(height, len(c.lines))
		}
		for line := 0; line < height; line++ {
			for cidx, c := range r {
				w.WriteByte(' ')
				w.WriteString(c.line(line, widths[cidx], opts.has(RightJustify)))
				w.WriteString(" |")
			}
			w.WriteByte('\n')
		}
		if (opts.has(HeaderRow) && ridx == 0) || (opts.has(FooterRow) && ridx == len(table)-2) {
			divider()
		}
	}
}

// rowNumber returns the cell of the Numbered column for row ridx of a table
// with n rows.
func rowNumber(opts Options, ridx, n int) string {
	switch {
	case opts.has(HeaderRow) && ridx == 0:
		return "#"
	case opts.has(FooterRow) && ridx == n-1:
		return ""
	case opts.has(HeaderRow):
		return strconv.Itoa(ridx)
	}
	return strconv.Itoa(ridx + 1)
}

type cell struct {
	lines []string
	width int
}

func makeCell(s string, truncate bool) cell {
	c := cell{
		lines: strings.Split(s, "\n"),
	}
	for i, l := range c.lines {
		if truncate && charsWide(l) > MaxLineWidth {
			l = string([]rune(norm.NFC.String(l))[:MaxLineWidth-1]) + "…"
			c.lines[i] = l
		}
		c.width = cmp.MaxInt(c.width, charsWide(l))
	}
	return c
}

// line returns the i-th line of the cell padded to width. Lines past the end
// of the cell are blank.
func (c *cell) line(i, width int, right bool) string {
	l := ""
	if i < len(c.lines) {
		l = c.lines[i]
	}
	pad := width - charsWide(l)
	if pad <= 0 {
		return l
	}
	if right {
		return strings.Repeat(" ", pad) + l
	}
	return l + strings.Repeat(" ", pad)
}

// charsWide estimates how wide a string will be on a typical terminal or web
// browser. The problem is a bit harder than it appears thanks to Unicode; the
// corresponding unit tests have some interesting cases.
func charsWide(s string) int {
	s = norm.NFC.String(s)
	return utf8.RuneCountInString(s)
}
