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

// Package graphviz generates diagrams from dot input.
package graphviz

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Filetype is the file format of output image.
type Filetype int

// Supported Filetypes.
const (
	PDF Filetype = 1
	PNG Filetype = 2
	SVG Filetype = 3
	// Dot is the Graphviz spec itself, written without running dot.
	Dot Filetype = 4
)

var extensions = map[string]Filetype{
	"pdf": PDF,
	"png": PNG,
	"svg": SVG,
	"dot": Dot,
	"gv":  Dot,
}

func (t Filetype) String() string {
	switch t {
	case PDF:
		return "pdf"
	case PNG:
		return "png"
	case SVG:
		return "svg"
	case Dot:
		return "dot"
	}
	return fmt.Sprintf("Filetype(%d)", int(t))
}

// FiletypeOf returns the Filetype named by the extension of filename.
func FiletypeOf(filename string) (Filetype, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if t, ok := extensions[ext]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("could not determine filetype from filename: %v", filename)
}

// Options to Create.
type Options struct {
	// Unless provided, Create will attempt to autodetect this from the filename.
	Filetype Filetype
}

// Create writes an image file from a Graphviz spec. 'generate' should write
// the Graphviz spec into the given writer; it may safely ignore errors from
// the writer.
func Create(filename string, generate func(io.Writer), options Options) error {
	if options.Filetype == 0 {
		var err error
		options.Filetype, err = FiletypeOf(filename)
		if err != nil {
			return err
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	err = Render(file, generate, options.Filetype)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Render writes the image to out. Except for the Dot Filetype, it invokes the
// "dot" program internally.
func Render(out io.Writer, generate func(io.Writer), filetype Filetype) error {
	switch filetype {
	case Dot:
		generate(out)
		return nil
	case PDF, PNG, SVG:
	default:
		return fmt.Errorf("unknown file type: %v", filetype)
	}
	cmd := exec.Command("dot", "-T"+filetype.String())
	cmd.Stdout = out
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	go func() {
		defer stdin.Close()
		generate(stdin)
	}()
	var errOut strings.Builder
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error executing dot: %v. Stderr: %v", err, errOut.String())
	}
	return nil
}
