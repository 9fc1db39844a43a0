// Package tradelog keeps an append-only JSON-lines journal of fills and
// signals, one file per UTC day, with gzip compression of old files.
package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lacymorrow/trade/internal/types"
)

type Entry struct {
	Time, Symbol, Side, OrderID, Tag string
	Qty                              float64
	Price                            float64
	Simulated                        bool
	Extra                            map[string]any `json:"Extra,omitempty"`
}

type SignalEntry struct {
	Time, Symbol, Action string
	Strength             float64
	Price                float64
	Indicators           map[string]float64
	Sentiment            *float64 `json:"Sentiment,omitempty"`
}

// Logger writes journal files under a base directory.
type Logger struct {
	mu  sync.Mutex
	dir string
}

// New creates a journal rooted at dir. TRADER_LOG_DIR overrides an empty
// dir; the final fallback is ./logs.
func New(dir string) *Logger {
	if dir == "" {
		dir = os.Getenv("TRADER_LOG_DIR")
	}
	if dir == "" {
		dir = "logs"
	}
	return &Logger{dir: dir}
}

func (l *Logger) dailyFilepath(t time.Time) string {
	return filepath.Join(l.dir, t.UTC().Format("2006-01-02")+".txt")
}

func (l *Logger) signalsFilepath(t time.Time) string {
	return filepath.Join(l.dir, "signals", t.UTC().Format("2006-01-02")+".txt")
}

func (l *Logger) appendLine(path string, v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// AppendFill records an executed (or simulated) fill.
func (l *Logger) AppendFill(result types.OrderResult, tag string) error {
	now := time.Now().UTC()
	e := Entry{
		Time:      now.Format("2006-01-02 15:04:05"),
		Symbol:    result.Symbol,
		Side:      string(result.Side),
		OrderID:   result.OrderID,
		Tag:       tag,
		Qty:       result.Qty,
		Price:     result.FillPrice,
		Simulated: result.Simulated,
	}
	return l.appendLine(l.dailyFilepath(now), e)
}

// AppendSignal records a generated signal with its indicator breakdown.
func (l *Logger) AppendSignal(sig *types.Signal) error {
	now := time.Now().UTC()
	e := SignalEntry{
		Time:       now.Format("2006-01-02 15:04:05"),
		Symbol:     sig.Symbol,
		Action:     string(sig.Action),
		Strength:   sig.Strength,
		Price:      sig.Price,
		Indicators: sig.Indicators,
		Sentiment:  sig.Sentiment,
	}
	return l.appendLine(l.signalsFilepath(now), e)
}

// CompressOlder gzips journal files older than retentionDays and removes the
// originals.
func (l *Logger) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	return filepath.WalkDir(l.dir, func(p string, d os.DirEntry, err error) error {
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
			// if already gz exists, remove original .txt
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
