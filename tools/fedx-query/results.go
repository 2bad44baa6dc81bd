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

package main

import (
	"io"
	"strconv"

	"github.com/ebay/fedx/federation/conn"
	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/rdf/sparqljson"
	"github.com/ebay/fedx/util/table"
)

// writeTable prints the results as a table with a column per variable. An
// ASK answer is printed as a one-cell table. It returns the number of
// solutions.
func writeTable(out io.Writer, res *conn.Results) (int, error) {
	if res.Form == algebra.FormAsk {
		answer := res.Next()
		if err := res.Err(); err != nil {
			return 0, err
		}
		table.PrettyPrint(out, [][]string{{"ask"}, {strconv.FormatBool(answer)}}, table.HeaderRow)
		return 1, nil
	}
	t := [][]string{res.Vars}
	for res.Next() {
		b := res.Binding()
		row := make([]string, len(res.Vars))
		for i, v := range res.Vars {
			if val, ok := b.Get(v); ok {
				row[i] = val.String()
			}
		}
		t = append(t, row)
	}
	if err := res.Err(); err != nil {
		return 0, err
	}
	table.PrettyPrint(out, t, table.HeaderRow|table.Numbered|table.Truncate)
	return len(t) - 1, nil
}

// writeJSON prints the results in the SPARQL JSON results format. It returns
// the number of solutions.
func writeJSON(out io.Writer, res *conn.Results) (int, error) {
	if res.Form == algebra.FormAsk {
		answer := res.Next()
		if err := res.Err(); err != nil {
			return 0, err
		}
		return 1, sparqljson.WriteBoolean(out, answer)
	}
	w := sparqljson.NewWriter(out, res.Vars)
	count := 0
	for res.Next() {
		if err := w.Write(res.Binding()); err != nil {
			return count, err
		}
		count++
	}
	if err := res.Err(); err != nil {
		return count, err
	}
	return count, w.Close()
}
