package actions

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/infra/fleet"
	"github.com/tnqbao/gau-site-director/pipeline"
	"github.com/tnqbao/gau-site-director/utils"
)

// Scope keys shared between actions.
const (
	ScopePingableAppservers = "pingable_appservers"
	ScopePingableBalancers  = "pingable_balancers"
	ScopeDockerBuildNode    = "docker_build_node"
	ScopeNewName            = "new_name"
	ScopeNewType            = "new_type"
	ScopeDomains            = "domains"
	ScopeCPUs               = "cpus"
	ScopeMemoryMB           = "memory_mb"
	ScopeDockerImage        = "docker_image"
	ScopeDBMS               = "dbms"
)

const databasePasswordLength = 32

var (
	ErrNoPingableAppservers = errors.New("no pingable appservers")
	ErrNoPingableBalancers  = errors.New("no pingable balancers")
	ErrMissingScopeValue    = errors.New("missing scope value")
)

type SiteStore interface {
	UpdateFields(ctx context.Context, site *entity.Site, fields ...string) error
	Delete(ctx context.Context, site *entity.Site) error
}

type DatabaseStore interface {
	FindHostByDBMS(ctx context.Context, dbms entity.DBMS) (*entity.DatabaseHost, error)
	Create(ctx context.Context, db *entity.Database) error
	UpdatePassword(ctx context.Context, db *entity.Database) error
	Delete(ctx context.Context, db *entity.Database) error
}

type ImageStore interface {
	FindByName(ctx context.Context, name string) (*entity.DockerImage, error)
}

type Settings struct {
	SitesDomain        string
	RegistryURL        string
	Production         bool
	PingTimeout        time.Duration
	RequestTimeout     time.Duration
	LongRequestTimeout time.Duration
}

// Library holds every action callback. Each callback is safe to re-run
// after a partial or complete earlier run.
type Library struct {
	fleet     *fleet.Fleet
	sites     SiteStore
	databases DatabaseStore
	images    ImageStore
	settings  Settings
	password  func() (string, error)

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Library)

func WithRand(rng *rand.Rand) Option {
	return func(l *Library) { l.rng = rng }
}

func WithPasswordGenerator(fn func() (string, error)) Option {
	return func(l *Library) { l.password = fn }
}

func NewLibrary(f *fleet.Fleet, sites SiteStore, databases DatabaseStore, images ImageStore, settings Settings, opts ...Option) *Library {
	l := &Library{
		fleet:     f,
		sites:     sites,
		databases: databases,
		images:    images,
		settings:  settings,
		password:  func() (string, error) { return utils.GeneratePassword(databasePasswordLength) },
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x2545f4914f6cdd1d)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) HasBalancers() bool {
	return l.fleet.Balancers != nil && l.fleet.Balancers.Len() > 0
}

func (l *Library) Production() bool {
	return l.settings.Production
}

func (l *Library) step(spec pipeline.ActionSpec, cb pipeline.Callback) pipeline.Step {
	return pipeline.Step{Spec: spec, Callback: cb}
}

// pick chooses one of the nodes that answered the initial ping.
func (l *Library) pick(scope pipeline.Scope, key string) (int, error) {
	nodes := scope.GetInts(key)
	if len(nodes) == 0 {
		if key == ScopePingableBalancers {
			return 0, ErrNoPingableBalancers
		}
		return 0, ErrNoPingableAppservers
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return nodes[l.rng.IntN(len(nodes))], nil
}
