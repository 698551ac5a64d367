package repository

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout 流水时间格式，例如 2025-09-14 14:46:06.223209
const TimestampLayout = "2006-01-02 15:04:05.000000"

// parseLayout 解析时秒后的小数部分可有可无
const parseLayout = "2006-01-02 15:04:05"

// FormatAmount 金额至少保留一位小数：7000 -> "7000.0"，12.25 -> "12.25"
func FormatAmount(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

func parseAccountNumber(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("账号必须为正整数")
	}
	return n, nil
}

func formatAccountNumber(n int64) string {
	return strconv.FormatInt(n, 10)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(parseLayout, strings.TrimSpace(s), time.Local)
}

// rowReader 逐行读取，字段数由调用方校验，空行自动跳过
type rowReader struct {
	r *csv.Reader
}

func newRowReader(r io.Reader) *rowReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return &rowReader{r: cr}
}

// next 返回下一行及其行号，读完时返回 io.EOF
func (rr *rowReader) next() ([]string, int, error) {
	rec, err := rr.r.Read()
	if err != nil {
		return nil, 0, err
	}
	line, _ := rr.r.FieldPos(0)
	return rec, line, nil
}
