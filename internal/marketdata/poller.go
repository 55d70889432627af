package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stratagem/internal/domain"
	"stratagem/internal/portfolio"
	"stratagem/internal/wishlist"
)

// Update is one refreshed quote, tagged with the wishlist it was polled
// for. A symbol held in several wishlists produces one Update per wishlist.
type Update struct {
	WishlistIndex int
	Symbol        string
	Quote         domain.Quote
}

// Poller refreshes quotes for every wishlist symbol on a fixed interval
// and publishes each refresh to subscribers. After each sweep it triggers
// one portfolio revaluation.
type Poller struct {
	provider *Provider
	lists    *wishlist.Set
	valuator *portfolio.Valuator
	interval time.Duration
	backoff  time.Duration
	log      *slog.Logger

	subsMu sync.Mutex
	subs   map[int]chan Update
	nextID int
}

// NewPoller creates a Poller. The valuator may be nil when portfolio
// tracking is not wanted.
func NewPoller(
	provider *Provider,
	lists *wishlist.Set,
	valuator *portfolio.Valuator,
	interval, backoff time.Duration,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		provider: provider,
		lists:    lists,
		valuator: valuator,
		interval: interval,
		backoff:  backoff,
		log:      logger.With("component", "poller"),
		subs:     make(map[int]chan Update),
	}
}

// Run polls until the context is cancelled. A sweep that panics is logged
// and followed by a backoff; the loop never exits on error.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.safeTick(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.backoff):
				}
			}
		}
	}
}

func (p *Poller) safeTick(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("poll sweep panicked", "panic", r)
			ok = false
		}
	}()
	p.tick(ctx)
	return true
}

// tick performs one full sweep: every wishlist in index order, every
// symbol in insertion order. Per-symbol failures are logged and skipped.
func (p *Poller) tick(ctx context.Context) {
	snapshot := p.lists.Snapshot()
	for idx, symbols := range snapshot {
		for _, symbol := range symbols {
			q, err := p.provider.Fetch(ctx, symbol)
			if err != nil {
				p.log.Warn("quote fetch failed", "symbol", symbol, "error", err)
				continue
			}
			p.broadcast(Update{WishlistIndex: idx, Symbol: symbol, Quote: q})
		}
	}
	if p.valuator != nil {
		p.valuator.Revalue(ctx)
	}
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

// Subscribe returns a channel receiving quote updates and an id for
// Unsubscribe. Slow subscribers miss updates rather than block the sweep.
func (p *Poller) Subscribe(bufSize int) (int, <-chan Update) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	p.nextID++
	ch := make(chan Update, bufSize)
	p.subs[p.nextID] = ch
	return p.nextID, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (p *Poller) Unsubscribe(id int) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	if ch, ok := p.subs[id]; ok {
		delete(p.subs, id)
		close(ch)
	}
}

func (p *Poller) broadcast(u Update) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	for _, ch := range p.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
