package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/model"
)

var namePattern = regexp.MustCompile(`^(gen|dis)_R(\d+)_T(\d+)\.([A-Za-z0-9]+)$`)

// FileName is "{role}_R{level}_T{tick}.{ext}".
func FileName(role model.Role, level, tick int, ext string) string {
	return fmt.Sprintf("%s_R%d_T%d.%s", role, level, tick, ext)
}

// Name is a parsed checkpoint file name.
type Name struct {
	Role  model.Role
	Level int
	Tick  int
	Ext   string
}

// ParseName parses a base file name; ok is false for anything that is not a checkpoint.
func ParseName(base string) (Name, bool) {
	m := namePattern.FindStringSubmatch(base)
	if m == nil {
		return Name{}, false
	}
	level, err := strconv.Atoi(m[2])
	if err != nil {
		return Name{}, false
	}
	tick, err := strconv.Atoi(m[3])
	if err != nil {
		return Name{}, false
	}
	return Name{Role: model.Role(m[1]), Level: level, Tick: tick, Ext: m[4]}, true
}

// Pair groups the generator and discriminator files saved at one (level, tick).
type Pair struct {
	Level int
	Tick  int
	Gen   string // path, empty when missing
	Dis   string
}

func (p Pair) Complete() bool { return p.Gen != "" && p.Dis != "" }

// Missing names the role whose file is absent from an incomplete pair.
func (p Pair) Missing() []model.Role {
	var roles []model.Role
	if p.Dis == "" {
		roles = append(roles, model.RoleDiscriminator)
	}
	if p.Gen == "" {
		roles = append(roles, model.RoleGenerator)
	}
	return roles
}

// Scan lists checkpoint pairs in dir with extension ext, ordered by tick then level.
// A missing directory yields no pairs.
func Scan(dir, ext string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to list checkpoint directory").
			WithContext("dir", dir).Build()
	}

	type key struct{ level, tick int }
	byKey := map[key]*Pair{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, ok := ParseName(e.Name())
		if !ok || n.Ext != ext {
			continue
		}
		k := key{n.Level, n.Tick}
		p := byKey[k]
		if p == nil {
			p = &Pair{Level: n.Level, Tick: n.Tick}
			byKey[k] = p
		}
		path := filepath.Join(dir, e.Name())
		if n.Role == model.RoleGenerator {
			p.Gen = path
		} else {
			p.Dis = path
		}
	}

	pairs := make([]Pair, 0, len(byKey))
	for _, p := range byKey {
		pairs = append(pairs, *p)
	}
	slices.SortFunc(pairs, func(a, b Pair) int {
		if a.Tick != b.Tick {
			return a.Tick - b.Tick
		}
		return a.Level - b.Level
	})
	return pairs, nil
}

// Latest returns the pair with the maximum tick.
func Latest(pairs []Pair) (Pair, bool) {
	if len(pairs) == 0 {
		return Pair{}, false
	}
	return pairs[len(pairs)-1], true
}
