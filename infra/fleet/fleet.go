package fleet

import (
	"github.com/tnqbao/gau-site-director/config"
)

const (
	PoolAppservers = "appservers"
	PoolBalancers  = "balancers"
)

type Fleet struct {
	Appservers *Client
	Balancers  *Client
}

func NewFleet(cfg *config.EnvConfig) (*Fleet, error) {
	tlsConfig, err := LoadTLSConfig(cfg.Fleet.SSLCAFile, cfg.Fleet.SSLCertFile, cfg.Fleet.SSLKeyFile)
	if err != nil {
		return nil, err
	}

	opts := Options{TLSConfig: tlsConfig, SharedSecret: cfg.Fleet.SharedSecret}
	return &Fleet{
		Appservers: NewClient(PoolAppservers, cfg.Fleet.Appservers, opts),
		Balancers:  NewClient(PoolBalancers, cfg.Fleet.Balancers, opts),
	}, nil
}

// Pool looks up a client by pool name.
func (f *Fleet) Pool(name string) (*Client, bool) {
	switch name {
	case PoolAppservers:
		return f.Appservers, true
	case PoolBalancers:
		return f.Balancers, true
	}
	return nil, false
}
