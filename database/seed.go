/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
)

var seedOrderPattern = regexp.MustCompile(`^(\d+)_`)

// SeedFile is one SQL file of a seed directory.
type SeedFile struct {
	Path        string
	Order       int
	Environment string
}

// SeedLoader discovers seed files below root: common/*.sql first, then
// environments/<env>/*.sql, each ordered by its numeric "NNN_" prefix.
type SeedLoader struct {
	root        string
	environment string
}

func NewSeedLoader(root, environment string) *SeedLoader {
	return &SeedLoader{root: root, environment: environment}
}

func (s *SeedLoader) Files() ([]SeedFile, error) {
	common, err := s.scan(filepath.Join(s.root, "common"), "common")
	if err != nil {
		return nil, err
	}
	var env []SeedFile
	if s.environment != "" {
		if env, err = s.scan(filepath.Join(s.root, "environments", s.environment), s.environment); err != nil {
			return nil, err
		}
	}
	return append(common, env...), nil
}

func (s *SeedLoader) scan(dir, environment string) ([]SeedFile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []SeedFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".sql") {
			return nil
		}
		files = append(files, SeedFile{Path: path, Order: seedOrder(d.Name()), Environment: environment})
		return nil
	})
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Path < files[j].Path
	})
	return files, err
}

func seedOrder(name string) int {
	if m := seedOrderPattern.FindStringSubmatch(name); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 999
}

// Apply executes every statement of every file through db and returns the
// total affected row count.
func (s *SeedLoader) Apply(ctx context.Context, db bun.IDB) (int64, error) {
	files, err := s.Files()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		stmts, err := readStatements(f.Path)
		if err != nil {
			return total, err
		}
		for _, stmt := range stmts {
			res, err := db.ExecContext(ctx, stmt)
			if err != nil {
				return total, fmt.Errorf("seed %s: %w", f.Path, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
	}
	return total, nil
}

func readStatements(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	stmts, err := SplitStatements(file)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return stmts, nil
}

// SplitStatements splits a SQL script on trailing semicolons, dropping
// blank lines and "--" comment lines. Lines may be of any length.
func SplitStatements(r io.Reader) ([]string, error) {
	var out []string
	var cur strings.Builder
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	reader := bufio.NewReader(r)
	for {
		raw, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		line := strings.TrimSpace(raw)
		if line != "" && !strings.HasPrefix(line, "--") {
			cur.WriteString(line)
			cur.WriteByte(' ')
			if strings.HasSuffix(line, ";") {
				flush()
			}
		}
		if err != nil {
			break
		}
	}
	flush()
	return out, nil
}
