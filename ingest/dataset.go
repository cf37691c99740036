package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/healthgraph/types"
)

// Table is one cleaned dataset: a header plus rows keyed by column name.
type Table struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// HasColumn reports whether the header carries the column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts rows with JSON numbers or booleans as well as
// strings, and a bare array of row objects. Columns default to the union of
// the row keys when omitted.
func (t *Table) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '[':
		table, err := loadJSON(bytes.NewReader(data))
		if err != nil {
			return err
		}
		*t = table
		return nil
	}

	var raw struct {
		Columns []string        `json:"columns"`
		Rows    json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rows := Table{Columns: []string{}, Rows: []map[string]string{}}
	if len(raw.Rows) > 0 {
		var err error
		if rows, err = loadJSON(bytes.NewReader(raw.Rows)); err != nil {
			return fmt.Errorf("rows: %w", err)
		}
	}
	if len(raw.Columns) > 0 {
		rows.Columns = raw.Columns
	}
	*t = rows
	return nil
}

// Datasets maps a dataset key such as "food_intake" to its table.
type Datasets map[string]Table

// User identifies the owner of an ingestion batch.
type User struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
}

// Format is the on-disk encoding of a table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatFromPath 按文件扩展名推断格式
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported table format %q", filepath.Ext(path))
}

// LoadTable 读取 CSV（首行为表头）或 JSON 对象数组
func LoadTable(r io.Reader, format Format) (Table, error) {
	switch format {
	case FormatCSV:
		return loadCSV(r)
	case FormatJSON:
		return loadJSON(r)
	}
	return Table{}, fmt.Errorf("unsupported table format %q", format)
}

func loadCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return Table{Columns: []string{}, Rows: []map[string]string{}}, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return Table{Columns: header, Rows: rows}, nil
}

func loadJSON(r io.Reader) (Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var objects []map[string]any
	if err := dec.Decode(&objects); err != nil {
		return Table{}, fmt.Errorf("parse json: %w", err)
	}
	if objects == nil {
		objects = []map[string]any{}
	}

	seen := map[string]bool{}
	rows := make([]map[string]string, 0, len(objects))
	for _, obj := range objects {
		row := make(map[string]string, len(obj))
		for k, v := range obj {
			seen[k] = true
			if v == nil {
				continue
			}
			row[k] = strings.TrimSpace(fmt.Sprint(v))
		}
		rows = append(rows, row)
	}

	columns := make([]string, 0, len(seen))
	for c := range seen {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return Table{Columns: columns, Rows: rows}, nil
}

// =============================================================================
// 🧹 校验与归一化
// =============================================================================

const dateColumn = "date"

// 导入时接受的日期格式，统一归一化为 time.DateOnly
var dateLayouts = []string{
	time.DateOnly,
	"2006/01/02",
	"01/02/2006",
	time.RFC3339,
}

// NormalizeDate 把日期归一化为 YYYY-MM-DD
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), nil
		}
	}
	return "", fmt.Errorf("unrecognised date %q", s)
}

// measurement 一条待写入的测量记录
type measurement struct {
	kind  types.MeasurementKind
	name  string
	date  string
	props map[string]any
}

// rowParser 把一行转换为节点名与专属属性
type rowParser struct {
	columns []string
	parse   func(row map[string]string) (string, map[string]any, error)
}

var rowParsers = map[types.MeasurementKind]rowParser{
	types.KindFood: {
		columns: []string{"food_name", "amount", "calories"},
		parse: func(row map[string]string) (string, map[string]any, error) {
			name := strings.TrimSpace(row["food_name"])
			if name == "" {
				return "", nil, fmt.Errorf("food_name is empty")
			}
			amount, err := parseInt(row, "amount")
			if err != nil {
				return "", nil, err
			}
			calories, err := parseFloat(row, "calories")
			if err != nil {
				return "", nil, err
			}
			return name, map[string]any{"amount": amount, "calories": calories}, nil
		},
	},
	types.KindWater: {
		columns: []string{"total_water_ml"},
		parse: func(row map[string]string) (string, map[string]any, error) {
			ml, err := parseInt(row, "total_water_ml")
			if err != nil {
				return "", nil, err
			}
			return strconv.FormatInt(ml, 10), map[string]any{"amount_ml": ml}, nil
		},
	},
	types.KindSleep: {
		columns: []string{"total_sleep_h"},
		parse: func(row map[string]string) (string, map[string]any, error) {
			h, err := parseFloat(row, "total_sleep_h")
			if err != nil {
				return "", nil, err
			}
			return strconv.FormatFloat(h, 'f', -1, 64), map[string]any{"duration_h": h}, nil
		},
	},
	types.KindStep: {
		columns: []string{"total_steps"},
		parse: func(row map[string]string) (string, map[string]any, error) {
			n, err := parseInt(row, "total_steps")
			if err != nil {
				return "", nil, err
			}
			return strconv.FormatInt(n, 10), map[string]any{"count": n}, nil
		},
	},
}

// parseInt 接受 "3" 与 "3.0" 这类整数值；带小数、非有限或超出 int64 的值被拒绝
func parseInt(row map[string]string, col string) (int64, error) {
	v := strings.TrimSpace(row[col])
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	f, err := parseFloat(row, col)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s: %q is not a whole number", col, v)
	}
	// float64(math.MaxInt64) 会进位到 2^63
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%s: %q is out of range", col, v)
	}
	return int64(f), nil
}

func parseFloat(row map[string]string, col string) (float64, error) {
	v := strings.TrimSpace(row[col])
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %q is not a finite number", col, v)
	}
	return f, nil
}

// maxReportedProblems 校验错误信息中最多列出的问题数
const maxReportedProblems = 5

// prepare 校验整批数据并转换为测量记录。任何问题都拒绝整批。
func prepare(user User, data Datasets) ([]measurement, error) {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if user.ID <= 0 {
		report("user_id must be positive, got %d", user.ID)
	}
	for key := range data {
		if _, ok := types.KindForDataset(key); !ok {
			report("unknown dataset %q", key)
		}
	}

	var out []measurement
	for _, kind := range types.AllKinds {
		table, ok := data[kind.DatasetKey()]
		if !ok {
			continue
		}
		parser := rowParsers[kind]
		key := kind.DatasetKey()

		missing := false
		for _, col := range append([]string{dateColumn}, parser.columns...) {
			if !table.HasColumn(col) {
				report("%s: missing column %q", key, col)
				missing = true
			}
		}
		if missing {
			continue
		}

		for i, row := range table.Rows {
			date, err := NormalizeDate(row[dateColumn])
			if err != nil {
				report("%s row %d: %v", key, i+1, err)
				continue
			}
			name, props, err := parser.parse(row)
			if err != nil {
				report("%s row %d: %v", key, i+1, err)
				continue
			}
			out = append(out, measurement{kind: kind, name: name, date: date, props: props})
		}
	}

	if len(problems) == 0 {
		return out, nil
	}
	msg := strings.Join(problems[:min(len(problems), maxReportedProblems)], "; ")
	if extra := len(problems) - maxReportedProblems; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return nil, types.NewIngestValidation(msg)
}
