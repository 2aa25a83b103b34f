package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
)

// FetchFunc produces raw JSON objects by calling emit once per record and
// returns how many it produced.
type FetchFunc func(emit func(raw []byte) error) (int, error)

// Path returns where a named dataset lives under dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

// Save writes every fetched record to path as one compact JSON object per
// line, creating parent directories as needed. Records are written to a
// temporary file that replaces path only once the fetch succeeds, so a failed
// refresh leaves the previous dataset in place.
func Save(path string, fetch FetchFunc) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create dataset: %w", err)
	}
	tmp := f.Name()
	w := bufio.NewWriter(f)

	written := 0
	_, err = fetch(func(raw []byte) error {
		if !gjson.ValidBytes(raw) {
			return fmt.Errorf("record %d: invalid json", written+1)
		}
		if _, err := w.WriteString(gjson.GetBytes(raw, "@ugly").Raw); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
		written++
		return nil
	})
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("save dataset %s: %w", path, err)
	}
	return written, nil
}

// Open returns a lazy source over a saved dataset. The caller closes it.
func Open(path string) (record.Source, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	return record.NewJSONDecoder(f), f, nil
}

// Load reads a whole dataset into memory as raw objects.
func Load(path string) ([][]byte, error) {
	src, closer, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	recs, err := record.Collect(src)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	out := make([][]byte, 0, len(recs))
	for _, rec := range recs {
		j, ok := rec.(*record.JSON)
		if !ok {
			return nil, errors.New("dataset holds non-json records")
		}
		out = append(out, j.Raw())
	}
	return out, nil
}

// Exists reports whether a dataset file is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
