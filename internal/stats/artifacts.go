package stats

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"demosim/internal/model"
	"demosim/internal/params"
)

const (
	ParamsFile     = "params_used.json"
	TimeSeriesFile = "time_series_outputs.csv"
	SweepInfoFile  = "sweep_info.json"
)

const (
	colPopSize = "popSize"
	colDeaths  = "deaths"
	colBirths  = "births"
)

// RunFiles lists the artifacts written into every run directory.
func RunFiles() []string {
	return []string{ParamsFile, TimeSeriesFile}
}

func WriteParams(runDir string, p params.Params) error {
	if err := writeJSON(filepath.Join(runDir, ParamsFile), p); err != nil {
		return fmt.Errorf("write params: %w", err)
	}
	return nil
}

func ReadParams(runDir string) (params.Params, bool, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ParamsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return params.Params{}, false, nil
		}
		return params.Params{}, false, err
	}
	var p params.Params
	if err := json.Unmarshal(data, &p); err != nil {
		return params.Params{}, false, fmt.Errorf("decode %s: %w", ParamsFile, err)
	}
	return p, true, nil
}

// ReadParamsMap returns the raw params record, keeping numbers as
// normalized int64/float64 values.
func ReadParamsMap(runDir string) (map[string]any, bool, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ParamsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", ParamsFile, err)
	}
	for k, v := range raw {
		if n, ok := v.(json.Number); ok {
			raw[k] = params.NormalizeNumber(n)
		}
	}
	return raw, true, nil
}

// WriteTimeSeries writes the series as CSV with a leading unnamed index
// column followed by popSize, deaths and births.
func WriteTimeSeries(runDir string, ts model.TimeSeries) error {
	var buf bytes.Buffer
	if err := EncodeTimeSeries(&buf, ts); err != nil {
		return fmt.Errorf("write time series: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, TimeSeriesFile), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write time series: %w", err)
	}
	return nil
}

func EncodeTimeSeries(w io.Writer, ts model.TimeSeries) error {
	if len(ts.Deaths) != len(ts.PopSize) || len(ts.Births) != len(ts.PopSize) {
		return fmt.Errorf("time series columns are not aligned: pop=%d deaths=%d births=%d", len(ts.PopSize), len(ts.Deaths), len(ts.Births))
	}
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"", colPopSize, colDeaths, colBirths}); err != nil {
		return err
	}
	for i := range ts.PopSize {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.Itoa(ts.PopSize[i]),
			strconv.Itoa(ts.Deaths[i]),
			strconv.Itoa(ts.Births[i]),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadTimeSeries(runDir string) (model.TimeSeries, bool, error) {
	file, err := os.Open(filepath.Join(runDir, TimeSeriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.TimeSeries{}, false, nil
		}
		return model.TimeSeries{}, false, err
	}
	defer file.Close()

	ts, err := DecodeTimeSeries(file)
	if err != nil {
		return model.TimeSeries{}, false, fmt.Errorf("read %s: %w", filepath.Join(runDir, TimeSeriesFile), err)
	}
	return ts, true, nil
}

// DecodeTimeSeries locates the columns by header name, so files with or
// without the index column are both accepted.
func DecodeTimeSeries(r io.Reader) (model.TimeSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.TimeSeries{}, errors.New("time series header is missing")
		}
		return model.TimeSeries{}, err
	}
	idx := map[string]int{colPopSize: -1, colDeaths: -1, colBirths: -1}
	for i, name := range header {
		if _, ok := idx[name]; ok {
			idx[name] = i
		}
	}
	for name, i := range idx {
		if i < 0 {
			return model.TimeSeries{}, fmt.Errorf("time series column %q is missing", name)
		}
	}

	ts := model.TimeSeries{PopSize: []int{}, Deaths: []int{}, Births: []int{}}
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.TimeSeries{}, err
		}
		var m model.StepMetrics
		for name, dst := range map[string]*int{colPopSize: &m.PopulationSize, colDeaths: &m.Deaths, colBirths: &m.Births} {
			col := idx[name]
			if col >= len(record) {
				return model.TimeSeries{}, fmt.Errorf("row %d: column %q is missing", row, name)
			}
			v, err := strconv.Atoi(record[col])
			if err != nil {
				return model.TimeSeries{}, fmt.Errorf("row %d: column %q: %w", row, name, err)
			}
			*dst = v
		}
		ts.Append(m)
	}
	return ts, nil
}

func WriteSweepInfo(rootDir string, info SweepInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(rootDir, SweepInfoFile), info); err != nil {
		return fmt.Errorf("write sweep info: %w", err)
	}
	return nil
}

func ReadSweepInfo(rootDir string) (SweepInfo, bool, error) {
	data, err := os.ReadFile(filepath.Join(rootDir, SweepInfoFile))
	if err != nil {
		if os.IsNotExist(err) {
			return SweepInfo{}, false, nil
		}
		return SweepInfo{}, false, err
	}
	var info SweepInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return SweepInfo{}, false, fmt.Errorf("decode %s: %w", SweepInfoFile, err)
	}
	return info, true, nil
}

// CopyRunArtifacts copies every run artifact present in src into dst.
func CopyRunArtifacts(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, file := range RunFiles() {
		from := filepath.Join(src, file)
		if _, err := os.Stat(from); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := copyFile(from, filepath.Join(dst, file)); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
