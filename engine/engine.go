package engine

import (
	"sync"
	"time"

	"github.com/attunefm/attune/directory"
	"github.com/attunefm/attune/protocol"
	"github.com/attunefm/attune/util"
)

const (
	cycle_period_evict     = time.Second * 1
	cycle_period_prune     = time.Second * 1
	cycle_period_save_logs = time.Second * 10
)

var (
	cycle_period = time.Millisecond * 250

	last_cycle_sync      *time.Time
	last_cycle_ping      *time.Time
	last_cycle_evict     *time.Time
	last_cycle_prune     *time.Time
	last_cycle_announce  *time.Time
	last_cycle_save_logs *time.Time

	mu        sync.Mutex
	session   Session
	tickers   []Ticker
	pruners   []Pruner
	announcer func()
)

// Session is the periodic surface of a room host or a joined client. A
// client's SyncCycle is a no-op; only hosts broadcast.
type Session interface {
	SyncCycle()
	PingCycle()
	EvictionCycle()
}

// Ticker is anything that folds wall time into its state each base cycle,
// like the virtual player clock.
type Ticker interface {
	Tick()
}

// Pruner drops expired entries and reports how many went.
type Pruner interface {
	Prune() int
}

func RegisterSession(s Session) {
	mu.Lock()
	defer mu.Unlock()
	session = s
}

func RegisterTicker(t Ticker) {
	mu.Lock()
	defer mu.Unlock()
	tickers = append(tickers, t)
}

func RegisterPruner(p Pruner) {
	mu.Lock()
	defer mu.Unlock()
	pruners = append(pruners, p)
}

// RegisterAnnouncer installs the periodic home directory announcement.
func RegisterAnnouncer(f func()) {
	mu.Lock()
	defer mu.Unlock()
	announcer = f
}

func Run() {
	for {
		cycle()

		time.Sleep(cycle_period)
	}
}

func shouldDoCycle(last *time.Time, period time.Duration) bool {
	return last == nil || time.Since(*last) >= period
}

func cycle() {
	now := time.Now()

	mu.Lock()
	currentSession := session
	currentTickers := append([]Ticker(nil), tickers...)
	currentPruners := append([]Pruner(nil), pruners...)
	currentAnnouncer := announcer
	mu.Unlock()

	for _, ticker := range currentTickers {
		ticker.Tick()
	}

	if currentSession != nil {
		if shouldDoCycle(last_cycle_sync, protocol.SyncInterval) {
			currentSession.SyncCycle()
			last_cycle_sync = &now
		}

		if shouldDoCycle(last_cycle_ping, protocol.PingInterval) {
			currentSession.PingCycle()
			last_cycle_ping = &now
		}

		if shouldDoCycle(last_cycle_evict, cycle_period_evict) {
			currentSession.EvictionCycle()
			last_cycle_evict = &now
		}
	}

	if len(currentPruners) > 0 && shouldDoCycle(last_cycle_prune, cycle_period_prune) {
		for _, pruner := range currentPruners {
			pruner.Prune()
		}
		last_cycle_prune = &now
	}

	if currentAnnouncer != nil && shouldDoCycle(last_cycle_announce, directory.AnnounceInterval) {
		currentAnnouncer()
		last_cycle_announce = &now
	}

	if shouldDoCycle(last_cycle_save_logs, cycle_period_save_logs) {
		util.WriteChannelLogsToFile()
		last_cycle_save_logs = &now
	}
}
