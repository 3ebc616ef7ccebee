package tradelog

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"pairbridge/internal/types"
)

var mu sync.Mutex

// Entry is one automation event appended to the daily log: pair opens,
// closes, skips and force-stops.
type Entry struct {
	Time    string
	Event   string
	TradeID string
	RuleID  string
	Reason  string
	Profit  float64
	Extra   map[string]any `json:"extra,omitempty"`
}

func logDir() string {
	if v := os.Getenv("PAIR_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), t.UTC().Format("2006-01-02")+".txt")
}

func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().UTC()
	e.Time = now.Format("2006-01-02 15:04:05")
	p := dailyFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(e)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

var csvHeader = []string{
	"trade_id", "rule_id", "rule_name", "opened_at", "closed_at",
	"symbol1", "side1", "lot1", "profit1", "commission1", "swap1",
	"symbol2", "side2", "lot2", "profit2", "commission2", "swap2",
	"combined_profit", "combined_commission", "combined_swap", "close_reason",
}

// ExportCSV rewrites the closed-trade table in full. Rewriting keeps the
// file consistent with the capped in-memory history instead of growing
// unbounded alongside it.
func ExportCSV(path string, history []types.ClosedTrade) error {
	mu.Lock()
	defer mu.Unlock()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return err
	}
	for _, h := range history {
		row := []string{
			h.TradeID, h.RuleID, h.RuleName,
			h.OpenedAt.UTC().Format(time.RFC3339),
			h.ClosedAt.UTC().Format(time.RFC3339),
			h.Leg1.Symbol, string(h.Leg1.Side), num(h.Leg1.Lot),
			num(h.Leg1.Profit), num(h.Leg1.Commission), num(h.Leg1.Swap),
			h.Leg2.Symbol, string(h.Leg2.Side), num(h.Leg2.Lot),
			num(h.Leg2.Profit), num(h.Leg2.Commission), num(h.Leg2.Swap),
			num(h.CombinedProfit), num(h.CombinedCommission), num(h.CombinedSwap),
			h.CloseReason,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CompressOlder gzips daily log files older than the retention window.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil {
			return nil
		}
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		if info.ModTime().Before(cutoff) {
			gz := p + ".gz"
			if _, e2 := os.Stat(gz); e2 == nil {
				_ = os.Remove(p)
				return nil
			}

			in, e3 := os.Open(p)
			if e3 != nil {
				return nil
			}
			defer in.Close()

			out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if e4 != nil {
				return nil
			}
			gw := gzip.NewWriter(out)
			if _, e5 := io.Copy(gw, in); e5 == nil {
				_ = gw.Close()
				_ = out.Close()
				_ = os.Remove(p)
			} else {
				_ = gw.Close()
				_ = out.Close()
			}
		}
		return nil
	})
}
