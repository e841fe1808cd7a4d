package roles

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// Claims is the layout of a claims file:
//
//	granted:
//	  - subject: "0x…"
//	    role: workerRole.roles.greenproof.apps.iam.ewc
//	    version: 1
//	revoked:
//	  - subject: "0x…"
//	    role: workerRole.roles.greenproof.apps.iam.ewc
type Claims struct {
	Granted []Claim `yaml:"granted"`
	Revoked []Claim `yaml:"revoked"`
}

type Claim struct {
	Subject types.Address `yaml:"subject"`
	Role    string        `yaml:"role"`
	Version uint64        `yaml:"version,omitempty"`
}

// FileOracle answers from a YAML claims file maintained by an operator or
// a sync job. The file is read on every query.
type FileOracle struct {
	path string
}

func NewFileOracle(path string) (*FileOracle, error) {
	o := &FileOracle{path: path}
	if _, err := o.load(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *FileOracle) load() (*MemoryOracle, error) {
	data, err := os.ReadFile(o.path)
	if err != nil {
		return nil, fmt.Errorf("reading claims file: %w", err)
	}
	var claims Claims
	if err := yaml.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("parsing claims file %s: %w", o.path, err)
	}
	mem := NewMemoryOracle()
	for _, c := range claims.Granted {
		mem.Grant(c.Subject, c.Role, c.Version)
	}
	for _, c := range claims.Revoked {
		mem.Revoke(c.Subject, c.Role)
	}
	return mem, nil
}

func (o *FileOracle) HasRole(ctx context.Context, subject types.Address, role string, version uint64) (bool, error) {
	mem, err := o.load()
	if err != nil {
		return false, err
	}
	return mem.HasRole(ctx, subject, role, version)
}

func (o *FileOracle) IsRevoked(ctx context.Context, role string, subject types.Address) (bool, error) {
	mem, err := o.load()
	if err != nil {
		return false, err
	}
	return mem.IsRevoked(ctx, role, subject)
}

// WriteClaims stores claims at path.
func WriteClaims(path string, claims *Claims) error {
	data, err := yaml.Marshal(claims)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
