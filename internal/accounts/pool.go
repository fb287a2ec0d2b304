// Package accounts models the static test account pool. Accounts are named
// <prefix><NNNN>, share one password, and are partitioned statically: worker
// i always gets account i, so no locking is ever needed.
package accounts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/technica-vn/aiknow-probe/internal/config"
)

// Account is one set of login credentials.
type Account struct {
	Username string
	Password string
}

// Pool enumerates the fixed accounts.
type Pool struct {
	prefix   string
	password string
	size     int
}

// NewPool builds the pool from configuration.
func NewPool(cfg config.AccountsConfig) *Pool {
	return &Pool{prefix: cfg.Prefix, password: cfg.Password, size: cfg.Count}
}

// Size reports the number of accounts in the pool.
func (p *Pool) Size() int {
	return p.size
}

// Get returns the account at index (0-based); usernames are 1-based and
// zero-padded, e.g. index 0 -> auto_user0001.
func (p *Pool) Get(index int) (Account, error) {
	if index < 0 || index >= p.size {
		return Account{}, fmt.Errorf("account index %d out of range [0,%d)", index, p.size)
	}
	return Account{
		Username: fmt.Sprintf("%s%04d", p.prefix, index+1),
		Password: p.password,
	}, nil
}

// ForWorkerID maps an external test-runner worker ID to an account. "master"
// (a non-parallel run) gets the first account; "gw<N>" IDs wrap around the
// pool so any number of runner workers stays within it.
func (p *Pool) ForWorkerID(id string) (Account, error) {
	if id == "" || id == "master" {
		return p.Get(0)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, "gw"))
	if err != nil {
		return Account{}, fmt.Errorf("unrecognized worker id %q", id)
	}
	return p.Get(n % p.size)
}
