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

	"github.com/jjudge-oj/problemgen/types"
)

var testcaseFilenamePattern = regexp.MustCompile(`^\d+_\d+\.(in|out)$`)

// archiveGroups maps an archive group index to its testcase type.
var archiveGroups = []types.TestcaseType{types.TestcaseBase, types.TestcaseEdge, types.TestcaseLarge}

const maxArchiveEntryBytes = 64 << 20

// BuildArchive packs cases into a tar.gz with one <group>_<order>.in/.out
// pair per case and returns the archive and its hex SHA-256. Output is
// deterministic for a given input.
func BuildArchive(cases []types.GeneratedTestcase) ([]byte, string, error) {
	if len(cases) == 0 {
		return nil, "", errors.New("no testcases to archive")
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	orders := make(map[int]int, len(archiveGroups))
	for _, tc := range cases {
		group := tc.Type.GroupOrder()
		if group < 0 {
			return nil, "", fmt.Errorf("unknown testcase type %q", tc.Type)
		}
		order := orders[group]
		orders[group]++

		if err := writeArchiveEntry(tw, fmt.Sprintf("%d_%d.in", group, order), tc.Input); err != nil {
			return nil, "", err
		}
		if err := writeArchiveEntry(tw, fmt.Sprintf("%d_%d.out", group, order), tc.Output); err != nil {
			return nil, "", err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, "", err
	}
	if err := gw.Close(); err != nil {
		return nil, "", err
	}

	data := buf.Bytes()
	hash := sha256.Sum256(data)
	return data, hex.EncodeToString(hash[:]), nil
}

func writeArchiveEntry(tw *tar.Writer, name, content string) error {
	if err := tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
	}); err != nil {
		return err
	}
	_, err := io.WriteString(tw, content)
	return err
}

// ReadArchive unpacks an archive produced by BuildArchive, ordered by group
// then order.
func ReadArchive(data []byte) ([]types.GeneratedTestcase, error) {
	if len(data) == 0 {
		return nil, errors.New("empty archive")
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New("invalid tar.gz archive")
	}
	defer gr.Close()

	type pair struct {
		in, out       string
		hasIn, hasOut bool
	}
	groups := make([]map[int]*pair, len(archiveGroups))
	for i := range groups {
		groups[i] = make(map[int]*pair)
	}

	tr := tar.NewReader(gr)
	count := 0
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.New("invalid tar.gz archive")
		}
		if header.FileInfo().IsDir() {
			continue
		}
		if !header.FileInfo().Mode().IsRegular() {
			return nil, errors.New("archive contains unsupported entries")
		}
		if err := validateArchiveFilename(header.Name); err != nil {
			return nil, err
		}

		base := path.Base(path.Clean(header.Name))
		group, order, ext, err := parseTestcaseFilename(base)
		if err != nil {
			return nil, err
		}
		if group >= len(groups) {
			return nil, fmt.Errorf("testcase group %d does not exist", group)
		}

		content, err := io.ReadAll(io.LimitReader(tr, maxArchiveEntryBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", base, err)
		}
		if len(content) > maxArchiveEntryBytes {
			return nil, fmt.Errorf("testcase file too large: %s", base)
		}

		p := groups[group][order]
		if p == nil {
			p = &pair{}
			groups[group][order] = p
		}
		switch ext {
		case "in":
			if p.hasIn {
				return nil, fmt.Errorf("duplicate testcase input: %d_%d.in", group, order)
			}
			p.in, p.hasIn = string(content), true
		case "out":
			if p.hasOut {
				return nil, fmt.Errorf("duplicate testcase output: %d_%d.out", group, order)
			}
			p.out, p.hasOut = string(content), true
		}
		count++
	}

	if count == 0 {
		return nil, errors.New("archive has no testcases")
	}

	var cases []types.GeneratedTestcase
	for group, orders := range groups {
		keys := make([]int, 0, len(orders))
		for order, p := range orders {
			if !p.hasIn || !p.hasOut {
				return nil, fmt.Errorf("testcase %d_%d must have both .in and .out files", group, order)
			}
			keys = append(keys, order)
		}
		sort.Ints(keys)
		for expected, order := range keys {
			if order != expected {
				return nil, fmt.Errorf("testcase order must be consecutive in group %d", group)
			}
			p := orders[order]
			cases = append(cases, types.GeneratedTestcase{Type: archiveGroups[group], Input: p.in, Output: p.out})
		}
	}
	return cases, nil
}

func parseTestcaseFilename(base string) (int, int, string, error) {
	ext := strings.TrimPrefix(path.Ext(base), ".")
	name := strings.TrimSuffix(base, "."+ext)
	parts := strings.Split(name, "_")
	if ext == "" || len(parts) != 2 {
		return 0, 0, "", fmt.Errorf("invalid testcase filename: %s", base)
	}
	group, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, "", fmt.Errorf("invalid testcase filename: %s", base)
	}
	order, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, "", fmt.Errorf("invalid testcase filename: %s", base)
	}
	return group, order, ext, nil
}

func validateArchiveFilename(name string) error {
	clean := path.Clean(name)
	if clean == "." {
		return errors.New("invalid testcase filename")
	}
	base := path.Base(clean)
	if base != clean {
		return errors.New("archive must not contain directories")
	}
	if !testcaseFilenamePattern.MatchString(base) {
		return fmt.Errorf("invalid testcase filename: %s", base)
	}
	return nil
}
