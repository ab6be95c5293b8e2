package indexer

import (
	"bufio"
	"errors"
	"io"
	"os"
)

var sidecarExts = []string{".cdx", ".cdxj", ".idx"}

// estimateRecords counts the lines of a sidecar index next to path, minus
// the header line. It returns -1 when there is no sidecar.
func estimateRecords(path string) int64 {
	for _, ext := range sidecarExts {
		n, err := countLines(path + ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil || n == 0 {
			return -1
		}
		return n - 1
	}
	return -1
}

func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		n    int64
		last byte = '\n'
	)
	br := bufio.NewReaderSize(f, 64*1024)
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			last = chunk[len(chunk)-1]
			if last == '\n' {
				n++
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		n++
	}
	return n, nil
}
