package lock

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wanpark/access-server-go/internal/model"
)

// Driver names accepted in the registry file.
const (
	DriverLog    = "log"
	DriverStrike = "strike"
	DriverTTLock = "ttlock"
)

// Lock describes one physical lock.
type Lock struct {
	ID         string          `yaml:"lockId"`
	FacilityID string          `yaml:"facilityId"`
	Purposes   []model.Purpose `yaml:"purposes"`
	PINEnabled *bool           `yaml:"pinEnabled"`
	Driver     string          `yaml:"driver"`

	// ttlock
	TTLockID int64 `yaml:"ttlockId"`

	// strike
	Pin       string        `yaml:"pin"`
	OpenFor   time.Duration `yaml:"openFor"`
	ActiveLow bool          `yaml:"activeLow"`
}

// Serves reports whether the lock is installed for purpose.
func (l Lock) Serves(purpose model.Purpose) bool {
	for _, p := range l.Purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

// AcceptsPIN defaults to true when the registry does not say otherwise.
func (l Lock) AcceptsPIN() bool {
	return l.PINEnabled == nil || *l.PINEnabled
}

type registryFile struct {
	Locks []Lock `yaml:"locks"`
}

// Registry is the read-only set of known locks, in file order.
type Registry struct {
	locks []Lock
	byID  map[string]int
}

func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock registry: %w", err)
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lock registry: %w", err)
	}
	return NewRegistry(f.Locks...)
}

func NewRegistry(locks ...Lock) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(locks))}
	for _, l := range locks {
		if err := validateLock(l); err != nil {
			return nil, err
		}
		if _, dup := r.byID[l.ID]; dup {
			return nil, fmt.Errorf("lock %s: duplicate lockId", l.ID)
		}
		r.byID[l.ID] = len(r.locks)
		r.locks = append(r.locks, l)
	}
	return r, nil
}

func validateLock(l Lock) error {
	if l.ID == "" {
		return fmt.Errorf("lock entry without lockId")
	}
	if l.FacilityID == "" {
		return fmt.Errorf("lock %s: facilityId is required", l.ID)
	}
	if len(l.Purposes) == 0 {
		return fmt.Errorf("lock %s: at least one purpose is required", l.ID)
	}
	for _, p := range l.Purposes {
		if !p.Valid() {
			return fmt.Errorf("lock %s: unknown purpose %q", l.ID, p)
		}
	}
	switch l.Driver {
	case DriverLog:
	case DriverStrike:
		if l.Pin == "" {
			return fmt.Errorf("lock %s: strike driver needs a pin", l.ID)
		}
	case DriverTTLock:
		if l.TTLockID == 0 {
			return fmt.Errorf("lock %s: ttlock driver needs ttlockId", l.ID)
		}
	default:
		return fmt.Errorf("lock %s: unknown driver %q", l.ID, l.Driver)
	}
	return nil
}

func (r *Registry) Get(lockID string) (Lock, bool) {
	i, ok := r.byID[lockID]
	if !ok {
		return Lock{}, false
	}
	return r.locks[i], true
}

// ByTTLockID maps a vendor lock id, as sent in lock record callbacks, to the
// registry entry.
func (r *Registry) ByTTLockID(id int64) (Lock, bool) {
	for _, l := range r.locks {
		if id != 0 && l.TTLockID == id {
			return l, true
		}
	}
	return Lock{}, false
}

// ForFacility returns the first lock at facilityID serving purpose. Invite
// redemption opens this lock.
func (r *Registry) ForFacility(facilityID string, purpose model.Purpose) (Lock, bool) {
	for _, l := range r.locks {
		if l.FacilityID == facilityID && l.Serves(purpose) {
			return l, true
		}
	}
	return Lock{}, false
}

func (r *Registry) Locks() []Lock {
	out := make([]Lock, len(r.locks))
	copy(out, r.locks)
	return out
}
