package services

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/intprep/apiserver/types"
)

var testcaseFilenamePattern = regexp.MustCompile(`^\d+\.(in|out)$`)

const (
	maxBundleFileBytes = 8 << 20
	maxBundleTestcases = 500
)

// ErrInvalidBundle is returned for archives that are not well-formed testcase bundles.
var ErrInvalidBundle = errors.New("invalid testcase bundle")

// ParseTestcaseBundle reads N.in / N.out pairs from a tar.gz archive.
// Numbering starts at 0 and must be consecutive. The returned bundle carries
// the SHA-256 of data; its version and object key are left to the caller.
func ParseTestcaseBundle(filename string, data []byte) (types.TestcaseBundle, []types.Testcase, error) {
	if len(data) == 0 {
		return types.TestcaseBundle{}, nil, fmt.Errorf("%w: empty bundle data", ErrInvalidBundle)
	}

	lower := strings.ToLower(strings.TrimSpace(filename))
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return types.TestcaseBundle{}, nil, fmt.Errorf("%w: zip bundles are not supported", ErrInvalidBundle)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
	default:
		return types.TestcaseBundle{}, nil, fmt.Errorf("%w: unsupported bundle format", ErrInvalidBundle)
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return types.TestcaseBundle{}, nil, fmt.Errorf("%w: invalid tar.gz bundle", ErrInvalidBundle)
	}
	defer gr.Close()

	testcases, err := readTestcasesFromTar(tar.NewReader(gr))
	if err != nil {
		return types.TestcaseBundle{}, nil, err
	}

	hash := sha256.Sum256(data)
	return types.TestcaseBundle{SHA256: hex.EncodeToString(hash[:])}, testcases, nil
}

func readTestcasesFromTar(tr *tar.Reader) ([]types.Testcase, error) {
	type pair struct {
		in, out       string
		hasIn, hasOut bool
	}
	pairs := make(map[int]*pair)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tar.gz bundle", ErrInvalidBundle)
		}
		if header.FileInfo().IsDir() {
			continue
		}
		if !header.FileInfo().Mode().IsRegular() {
			return nil, fmt.Errorf("%w: bundle contains unsupported entries", ErrInvalidBundle)
		}
		if err := validateBundleFilename(header.Name); err != nil {
			return nil, err
		}
		if header.Size > maxBundleFileBytes {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidBundle, header.Name, maxBundleFileBytes)
		}

		base := path.Base(path.Clean(header.Name))
		order, ext, err := parseTestcaseFilename(base)
		if err != nil {
			return nil, err
		}

		content, err := io.ReadAll(io.LimitReader(tr, maxBundleFileBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidBundle, base, err)
		}

		p := pairs[order]
		if p == nil {
			if len(pairs) >= maxBundleTestcases {
				return nil, fmt.Errorf("%w: more than %d testcases", ErrInvalidBundle, maxBundleTestcases)
			}
			p = &pair{}
			pairs[order] = p
		}
		switch ext {
		case "in":
			if p.hasIn {
				return nil, fmt.Errorf("%w: duplicate testcase input: %d.in", ErrInvalidBundle, order)
			}
			p.in, p.hasIn = string(content), true
		case "out":
			if p.hasOut {
				return nil, fmt.Errorf("%w: duplicate testcase output: %d.out", ErrInvalidBundle, order)
			}
			p.out, p.hasOut = string(content), true
		}
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: bundle has no testcases", ErrInvalidBundle)
	}

	orders := make([]int, 0, len(pairs))
	for order, p := range pairs {
		if !p.hasIn || !p.hasOut {
			return nil, fmt.Errorf("%w: testcase %d must have both .in and .out files", ErrInvalidBundle, order)
		}
		orders = append(orders, order)
	}
	sort.Ints(orders)

	testcases := make([]types.Testcase, len(orders))
	for expected, order := range orders {
		if order != expected {
			return nil, fmt.Errorf("%w: testcase numbering must be consecutive from 0", ErrInvalidBundle)
		}
		testcases[expected] = types.Testcase{Input: pairs[order].in, Output: pairs[order].out}
	}
	return testcases, nil
}

func parseTestcaseFilename(base string) (int, string, error) {
	ext := strings.TrimPrefix(path.Ext(base), ".")
	name := strings.TrimSuffix(base, "."+ext)
	order, err := strconv.Atoi(name)
	if ext == "" || err != nil || order < 0 {
		return 0, "", fmt.Errorf("%w: invalid testcase filename: %s", ErrInvalidBundle, base)
	}
	return order, ext, nil
}

func validateBundleFilename(name string) error {
	clean := path.Clean(name)
	if clean == "." {
		return fmt.Errorf("%w: invalid testcase filename", ErrInvalidBundle)
	}
	base := path.Base(clean)
	if base != clean {
		return fmt.Errorf("%w: bundle must not contain directories", ErrInvalidBundle)
	}
	if strings.Contains(base, `\`) {
		return fmt.Errorf("%w: invalid testcase filename", ErrInvalidBundle)
	}
	if !testcaseFilenamePattern.MatchString(base) {
		return fmt.Errorf("%w: invalid testcase filename: %s", ErrInvalidBundle, base)
	}
	return nil
}
