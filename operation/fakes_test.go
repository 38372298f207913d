package operation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tnqbao/gau-site-director/actions"
	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/infra"
	"github.com/tnqbao/gau-site-director/infra/fleet"
	"github.com/tnqbao/gau-site-director/repository"
	"gorm.io/gorm"
)

// memStore keeps operations and actions in memory. It serves as the
// operation repository, the action repository and the pipeline store.
type memStore struct {
	mu         sync.Mutex
	nextOp     uint
	nextAction uint
	ops        map[uint]entity.Operation
	actions    map[uint]entity.Action
	sites      map[uint]*entity.Site

	// hideExisting makes ExistsBySiteID miss rows, as a racing request would.
	hideExisting bool
}

func newMemStore(sites ...*entity.Site) *memStore {
	s := &memStore{
		ops:     map[uint]entity.Operation{},
		actions: map[uint]entity.Action{},
		sites:   map[uint]*entity.Site{},
	}
	for _, site := range sites {
		s.sites[site.ID] = site
	}
	return s
}

func (s *memStore) Create(_ context.Context, op *entity.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.ops {
		if existing.SiteID == op.SiteID {
			return repository.ErrOperationExists
		}
	}
	s.nextOp++
	op.ID = s.nextOp
	op.CreatedTime = time.Now()
	stored := *op
	stored.Site = nil
	stored.Actions = nil
	s.ops[op.ID] = stored
	return nil
}

func (s *memStore) FindByID(_ context.Context, id uint) (*entity.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	op.Site = s.sites[op.SiteID]
	op.Actions = s.actionsOf(id)
	return &op, nil
}

func (s *memStore) actionsOf(opID uint) []entity.Action {
	var out []entity.Action
	for _, a := range s.actions {
		if a.OperationID == opID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b entity.Action) int { return int(a.ID) - int(b.ID) })
	return out
}

func (s *memStore) ExistsBySiteID(_ context.Context, siteID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideExisting {
		return false, nil
	}
	for _, op := range s.ops {
		if op.SiteID == siteID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Delete(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, id)
	for aid, a := range s.actions {
		if a.OperationID == id {
			delete(s.actions, aid)
		}
	}
	return nil
}

func (s *memStore) ListStartedIDs(_ context.Context) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id, op := range s.ops {
		if op.StartedTime != nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memStore) ListUnstartedBefore(_ context.Context, cutoff time.Time) ([]entity.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Operation
	for _, op := range s.ops {
		if op.StartedTime == nil && op.CreatedTime.Before(cutoff) {
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *memStore) DeleteByOperationID(_ context.Context, operationID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.actions {
		if a.OperationID == operationID {
			delete(s.actions, id)
		}
	}
	return nil
}

func (s *memStore) SaveProgress(_ context.Context, action *entity.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[action.OperationID]; ok {
		s.actions[action.ID] = *action
	}
	return nil
}

func (s *memStore) FailInterrupted(_ context.Context, operationIDs []uint, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.actions {
		if !slices.Contains(operationIDs, a.OperationID) || a.StartedTime == nil || a.Result != nil {
			continue
		}
		a.SetResult(false)
		a.AppendMessage(message)
		s.actions[id] = a
		n++
	}
	return n, nil
}

func (s *memStore) CreateAction(_ context.Context, action *entity.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAction++
	action.ID = s.nextAction
	s.actions[action.ID] = *action
	return nil
}

func (s *memStore) SaveAction(ctx context.Context, action *entity.Action) error {
	return s.SaveProgress(ctx, action)
}

func (s *memStore) MarkOperationStarted(_ context.Context, op *entity.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.ops[op.ID]
	if !ok || stored.StartedTime != nil {
		return repository.ErrOperationNotPending
	}
	stored.StartedTime = op.StartedTime
	s.ops[op.ID] = stored
	return nil
}

func (s *memStore) DeleteIfUnstarted(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok || op.StartedTime != nil {
		return false, nil
	}
	delete(s.ops, id)
	for aid, a := range s.actions {
		if a.OperationID == id {
			delete(s.actions, aid)
		}
	}
	return true, nil
}

// markStartedBehindBack claims an operation the way another worker would.
func (s *memStore) markStartedBehindBack(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.ops[id]
	now := time.Now()
	op.StartedTime = &now
	s.ops[id] = op
}

func (s *memStore) operationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// claimingStore lets another worker claim the operation just before this
// one marks it started.
type claimingStore struct{ *memStore }

func (c claimingStore) MarkOperationStarted(ctx context.Context, op *entity.Operation) error {
	c.markStartedBehindBack(op.ID)
	return c.memStore.MarkOperationStarted(ctx, op)
}

// memLeases grants each key to a single holder until it is released.
type memLeases struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
	// lapsing keys read as held once, then expire like a dead holder's
	lapsing map[string]bool
}

func newMemLeases() *memLeases {
	return &memLeases{held: map[string]bool{}, lapsing: map[string]bool{}}
}

func (l *memLeases) Lease(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
	}, true, nil
}

func (l *memLeases) LeaseHeld(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.held[key]
	if l.lapsing[key] {
		delete(l.lapsing, key)
		delete(l.held, key)
	}
	return held, nil
}

func (l *memLeases) hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
}

func (l *memLeases) holdUntilChecked(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
	l.lapsing[key] = true
}

// memSites backs the site-mutating actions and name checks.
type memSites struct {
	store     *memStore
	updateErr error
	updates   [][]string
}

func (m *memSites) UpdateFields(_ context.Context, site *entity.Site, fields ...string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, fields)
	return nil
}

func (m *memSites) Delete(_ context.Context, site *entity.Site) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	delete(m.store.sites, site.ID)
	for id, op := range m.store.ops {
		if op.SiteID == site.ID {
			delete(m.store.ops, id)
		}
	}
	return nil
}

func (m *memSites) ExistsByName(_ context.Context, name string, excludeID uint) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, site := range m.store.sites {
		if site.Name == name && site.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

type noDatabases struct{}

func (noDatabases) FindHostByDBMS(context.Context, entity.DBMS) (*entity.DatabaseHost, error) {
	return nil, gorm.ErrRecordNotFound
}
func (noDatabases) Create(context.Context, *entity.Database) error         { return nil }
func (noDatabases) UpdatePassword(context.Context, *entity.Database) error { return nil }
func (noDatabases) Delete(context.Context, *entity.Database) error         { return nil }

type images map[string]*entity.DockerImage

func (f images) FindByName(_ context.Context, name string) (*entity.DockerImage, error) {
	img, ok := f[name]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return img, nil
}

type publisher struct {
	mu     sync.Mutex
	err    error
	queued []uint
}

func (p *publisher) PublishRunOperation(_ context.Context, operationID, _ uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.queued = append(p.queued, operationID)
	return nil
}

type events struct {
	mu  sync.Mutex
	all []entity.SiteEvent
}

func (e *events) NotifySite(_ context.Context, event entity.SiteEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, event)
	return nil
}

func (e *events) kinds() []entity.SiteEventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]entity.SiteEventKind, 0, len(e.all))
	for _, ev := range e.all {
		out = append(out, ev.Kind)
	}
	return out
}

type archive struct {
	traces []entity.OperationTrace
}

func (a *archive) ArchiveOperation(_ context.Context, trace entity.OperationTrace) (string, error) {
	a.traces = append(a.traces, trace)
	return fmt.Sprintf("sites/%d/operations/%d.json", trace.SiteID, trace.OperationID), nil
}

type mailbox struct {
	sent []string
}

func (m *mailbox) SendOperationFailure(_ context.Context, email, content, _ string) error {
	m.sent = append(m.sent, email+": "+content)
	return nil
}

// appserver is a fake fleet node; paths listed in fail answer 500.
type appserver struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
	srv   *httptest.Server
}

func newAppserver(t *testing.T, fail ...string) *appserver {
	t.Helper()
	a := &appserver{fail: map[string]bool{}}
	for _, f := range fail {
		a.fail[f] = true
	}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			fmt.Fprint(w, r.URL.Query().Get("message"))
			return
		}
		a.mu.Lock()
		a.paths = append(a.paths, r.URL.Path)
		a.mu.Unlock()
		if a.fail[r.URL.Path] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *appserver) addr() string {
	return strings.TrimPrefix(a.srv.URL, "http://")
}

func (a *appserver) requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.paths)
}

type env struct {
	store     *memStore
	sites     *memSites
	publisher *publisher
	events    *events
	archive   *archive
	mail      *mailbox
	scheduler *Scheduler
	runner    *Runner
	builder   *Builder
}

func discardLogger() *infra.LoggerClient {
	return infra.NewLoggerClient(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T, node *appserver, balancers []string, sites ...*entity.Site) *env {
	t.Helper()
	var appAddrs []string
	if node != nil {
		appAddrs = []string{node.addr()}
	}
	f := &fleet.Fleet{
		Appservers: fleet.NewClient(fleet.PoolAppservers, appAddrs, fleet.Options{}),
		Balancers:  fleet.NewClient(fleet.PoolBalancers, balancers, fleet.Options{}),
	}

	store := newMemStore(sites...)
	e := &env{
		store:     store,
		sites:     &memSites{store: store},
		publisher: &publisher{},
		events:    &events{},
		archive:   &archive{},
		mail:      &mailbox{},
	}
	imgs := images{"python": {ID: 1, Name: "python"}}
	lib := actions.NewLibrary(f, e.sites, noDatabases{}, imgs, actions.Settings{
		SitesDomain:        "sites.example.org",
		PingTimeout:        time.Second,
		RequestTimeout:     5 * time.Second,
		LongRequestTimeout: 5 * time.Second,
	}, actions.WithRand(rand.New(rand.NewPCG(1, 2))))

	logger := discardLogger()
	e.builder = NewBuilder(lib, store)
	e.scheduler = NewScheduler(store, NewValidator(e.sites, imgs, []string{"www"}), e.publisher, logger)
	e.runner = NewRunner(store, store, e.builder, logger,
		WithNotifier(e.events),
		WithArchiver(e.archive),
		WithAlerter(e.mail, "ops@example.org"),
	)
	return e
}

func staticSite() *entity.Site {
	return &entity.Site{
		ID:           42,
		Name:         "alpha",
		Type:         entity.SiteTypeStatic,
		Purpose:      entity.SitePurposeProject,
		Availability: entity.SiteAvailabilityEnabled,
	}
}

var errStoreDown = errors.New("store down")
