// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Source delivers blocks in chain order. Next returns io.EOF once exhausted.
type Source interface {
	Next(ctx context.Context) (*Block, error)
	Close() error
}

// FileSource reads one JSON block per line from a file, transparently
// decompressing files with a .zst suffix
type FileSource struct {
	file    *os.File
	zstdDec *zstd.Decoder
	dec     *json.Decoder
	path    string
	line    int
}

func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &FileSource{
		file: f,
		path: path,
	}
	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zdec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd stream %s: %w", path, err)
		}
		s.zstdDec = zdec
		r = zdec
	}
	return NewReaderSource(r, s), nil
}

// NewReaderSource decodes blocks from r. A FileSource may be passed to
// reuse its Close handling, otherwise nil.
func NewReaderSource(r io.Reader, s *FileSource) *FileSource {
	if s == nil {
		s = &FileSource{}
	}
	s.dec = json.NewDecoder(r)
	return s
}

func (s *FileSource) Next(ctx context.Context) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var blk Block
	if err := s.dec.Decode(&blk); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf(
			"decode block %d of %s: %w",
			s.line+1,
			s.path,
			err,
		)
	}
	s.line++
	return &blk, nil
}

func (s *FileSource) Close() error {
	if s.zstdDec != nil {
		s.zstdDec.Close()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// SliceSource serves blocks from memory
type SliceSource struct {
	blocks []*Block
	pos    int
}

func NewSliceSource(blocks ...*Block) *SliceSource {
	return &SliceSource{blocks: blocks}
}

func (s *SliceSource) Next(ctx context.Context) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.blocks) {
		return nil, io.EOF
	}
	blk := s.blocks[s.pos]
	s.pos++
	return blk, nil
}

func (s *SliceSource) Close() error {
	return nil
}
