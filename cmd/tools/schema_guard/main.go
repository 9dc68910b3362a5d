package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// schemaGuard scans migration files. Every .up.sql needs a matching .down.sql
// and money columns must not use binary floating point types.
// Exit code 0 = ok, 1 = violation, 2 = other error.
func main() {
	root := "internal/db/migrations"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	deny, err := scan(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schema_guard error: %v\n", err)
		os.Exit(2)
	}
	if len(deny) > 0 {
		for _, v := range deny {
			fmt.Fprintf(os.Stderr, "VIOLATION: %s\n", v)
		}
		os.Exit(1)
	}
	fmt.Println("schema_guard: OK")
}

var reFloat = regexp.MustCompile(`(?i)\b(real|double\s+precision|float[48]?)\b`)

func scan(dir string) ([]string, error) {
	var violations []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		if strings.HasSuffix(path, ".up.sql") {
			down := strings.TrimSuffix(path, ".up.sql") + ".down.sql"
			if _, err := os.Stat(down); err != nil {
				violations = append(violations, path+": missing "+filepath.Base(down))
			}
		}
		lines, err := checkFile(path)
		if err != nil {
			return err
		}
		for _, n := range lines {
			violations = append(violations, fmt.Sprintf("%s:%d: floating point column", path, n))
		}
		return nil
	})
	return violations, err
}

func checkFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	var bad []int
	s := bufio.NewScanner(f)
	for n := 1; s.Scan(); n++ {
		line := s.Text()
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		if reFloat.MatchString(line) {
			bad = append(bad, n)
		}
	}
	return bad, s.Err()
}
