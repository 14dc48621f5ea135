// Package journal keeps an append-only history of rate updates and applied trades.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

const (
	defaultJournalDir   = "./data/journal"
	segmentLimit        = 1000
	maxSegments         = 100
	rateUpdateKeyPrefix = "rate_update_"
	tradeKeyPrefix      = "trade_"
)

// RateUpdate is one successful aggregation written to the journal.
type RateUpdate struct {
	Time    time.Time        `json:"ts"`
	Sources []string         `json:"sources"`
	Records []RateUpdateItem `json:"records"`
}

// RateUpdateItem is a single applied rate.
type RateUpdateItem struct {
	Pair      string          `json:"pair"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Trade is an applied buy or sell.
type Trade struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Side       domain.TradeSide `json:"side"`
	Currency   string           `json:"currency"`
	Amount     decimal.Decimal  `json:"amount"`
	OldBalance decimal.Decimal  `json:"old_balance"`
	NewBalance decimal.Decimal  `json:"new_balance"`
	Rate       string           `json:"rate,omitempty"`
	Quote      string           `json:"quote"`
	Time       time.Time        `json:"ts"`
}

// Record pairs a journal entry with its log index.
type Record[T any] struct {
	Index uint64
	Entry T
}

// WALStore is a gowal-backed journal.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens or creates a journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// NewRateUpdate converts applied records into a journal entry.
func NewRateUpdate(at time.Time, sources []string, records []domain.RateRecord) RateUpdate {
	items := make([]RateUpdateItem, 0, len(records))
	for _, rec := range records {
		items = append(items, RateUpdateItem{
			Pair:      rec.Pair.String(),
			Rate:      rec.Rate,
			Source:    rec.Source,
			FetchedAt: rec.FetchedAt,
		})
	}
	return RateUpdate{Time: at, Sources: sources, Records: items}
}

// NewTrade converts an applied trade result into a journal entry.
func NewTrade(res domain.TradeResult) Trade {
	entry := Trade{
		ID:         res.ID,
		UserID:     res.UserID,
		Side:       res.Side,
		Currency:   res.Currency,
		Amount:     res.Amount,
		OldBalance: res.OldBalance,
		NewBalance: res.NewBalance,
		Quote:      res.Quote,
		Time:       res.Executed,
	}
	if res.Rate != nil {
		entry.Rate = res.Rate.String()
	}
	return entry
}

// AppendRateUpdate writes a rate update entry.
func (s *WALStore) AppendRateUpdate(update RateUpdate) error {
	return s.append(rateUpdateKeyPrefix, fmt.Sprintf("%d", update.Time.UnixNano()), update)
}

// AppendTrade writes a trade entry. Trade.ID is required.
func (s *WALStore) AppendTrade(trade Trade) error {
	if trade.ID == "" {
		return fmt.Errorf("trade id is required")
	}
	return s.append(tradeKeyPrefix, trade.ID, trade)
}

func (s *WALStore) append(prefix, id string, entry any) error {
	if s == nil || s.wal == nil {
		return errors.New("journal is not initialized")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal journal entry")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, prefix+id, payload)
}

// RateUpdatesAfter returns rate updates written after index.
func (s *WALStore) RateUpdatesAfter(index uint64) ([]Record[RateUpdate], error) {
	return entriesAfter[RateUpdate](s, index, rateUpdateKeyPrefix)
}

// TradesAfter returns trades written after index.
func (s *WALStore) TradesAfter(index uint64) ([]Record[Trade], error) {
	return entriesAfter[Trade](s, index, tradeKeyPrefix)
}

func entriesAfter[T any](s *WALStore, index uint64, prefix string) ([]Record[T], error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	var records []Record[T]
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, prefix) {
			continue
		}
		var entry T
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, errors.Wrap(err, "decode journal entry")
		}
		records = append(records, Record[T]{Index: idx, Entry: entry})
	}

	return records, nil
}

// CurrentIndex returns the latest index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
