// Package alarm collects self-diagnostic alarms raised anywhere in the agent
// and turns them into log events, one group per region.
//
// A Manager is constructed once by the agent and passed to whoever raises
// alarms. Identical alarms are folded into one record with a count until the
// next Flush.
package alarm

import (
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bft-labs/telship/internal/domain"
)

// Source is the EventGroup source of alarm events.
const Source = "telship_alarm"

// Default low-level admission: at most 10 per second, bursting to 10.
const (
	DefaultLowLevelRate  = 10
	DefaultLowLevelBurst = 10
)

// Labels scope an alarm. All fields are optional.
type Labels struct {
	Region   string
	Project  string
	Category string
	Config   string
}

type alarmKey struct {
	typ     Type
	project string
	cat     string
	config  string
	message string
}

type record struct {
	key       alarmKey
	count     int
	firstSeen time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithHostname overrides the hostname stamped on every alarm event.
func WithHostname(h string) Option {
	return func(m *Manager) { m.hostname = h }
}

// WithLowLevelLimit sets the admission rate of low-level alarms.
func WithLowLevelLimit(perSecond float64, burst int) Option {
	return func(m *Manager) { m.lowLevel = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// Manager is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	regions map[string]map[alarmKey]*record
	closed  bool

	lowLevel *rate.Limiter
	hostname string
	now      func() time.Time
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		regions:  make(map[string]map[alarmKey]*record),
		lowLevel: rate.NewLimiter(DefaultLowLevelRate, DefaultLowLevelBurst),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hostname == "" {
		m.hostname, _ = os.Hostname()
	}
	return m
}

// Send records an alarm. Repeats of the same type, labels and message in a
// region only bump the count. Alarms sent after ForceFlush are dropped.
func (m *Manager) Send(t Type, message string, l Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	byKey, ok := m.regions[l.Region]
	if !ok {
		byKey = make(map[alarmKey]*record)
		m.regions[l.Region] = byKey
	}
	k := alarmKey{typ: t, project: l.Project, cat: l.Category, config: l.Config, message: message}
	if r, ok := byKey[k]; ok {
		r.count++
		return
	}
	byKey[k] = &record{key: k, count: 1, firstSeen: m.now()}
}

// SendLowLevel is Send for noisy, low-value alarms. It reports whether the
// alarm was admitted.
func (m *Manager) SendLowLevel(t Type, message string, l Labels) bool {
	if !m.lowLevel.AllowN(m.now(), 1) {
		return false
	}
	m.Send(t, message, l)
	return true
}

// Pending returns the number of distinct alarms waiting for Flush.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, byKey := range m.regions {
		n += len(byKey)
	}
	return n
}

// Flush returns one EventGroup per region holding every recorded alarm,
// and clears the manager. Regions and alarms come out in a stable order.
func (m *Manager) Flush() []domain.EventGroup {
	m.mu.Lock()
	regions := m.regions
	m.regions = make(map[string]map[alarmKey]*record)
	m.mu.Unlock()

	names := make([]string, 0, len(regions))
	for r := range regions {
		names = append(names, r)
	}
	sort.Strings(names)

	now := m.now()
	groups := make([]domain.EventGroup, 0, len(names))
	for _, region := range names {
		byKey := regions[region]
		records := make([]*record, 0, len(byKey))
		for _, r := range byKey {
			records = append(records, r)
		}
		sort.Slice(records, func(i, j int) bool {
			if !records[i].firstSeen.Equal(records[j].firstSeen) {
				return records[i].firstSeen.Before(records[j].firstSeen)
			}
			return records[i].key.message < records[j].key.message
		})

		g := domain.EventGroup{Source: Source, Tags: map[string]string{"region": region}}
		for _, r := range records {
			g.Events = append(g.Events, m.event(r, now))
		}
		groups = append(groups, g)
	}
	return groups
}

// ForceFlush flushes and stops accepting alarms. Called once at shutdown.
func (m *Manager) ForceFlush() []domain.EventGroup {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Flush()
}

// Reopen accepts alarms again after ForceFlush, for an agent that is
// started after a stop.
func (m *Manager) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

func (m *Manager) event(r *record, now time.Time) domain.Event {
	contents := map[string]string{
		"alarm_type":    r.key.typ.String(),
		"alarm_message": r.key.message,
		"alarm_count":   strconv.Itoa(r.count),
		"hostname":      m.hostname,
	}
	if r.key.project != "" {
		contents["project_name"] = r.key.project
	}
	if r.key.cat != "" {
		contents["category"] = r.key.cat
	}
	if r.key.config != "" {
		contents["config"] = r.key.config
	}
	return domain.Event{Category: domain.CategoryLog, Timestamp: now, Contents: contents}
}
