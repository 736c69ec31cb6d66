package modespec

import (
	"io/fs"
	"strconv"
	"strings"

	"github.com/arthur-debert/nativeinstall/pkg/errors"
)

// Spec is a parsed permission-change expression in chmod syntax. Supported
// forms are plain octal ("644", masked by the process umask), octal with an
// explicit modifier ("=755", "+111", "-022"), and comma-separated symbolic
// clauses ("u=rwx,go=rx", "a+X").
type Spec struct {
	raw     string
	octal   bool
	op      byte
	value   uint32
	clauses []clause
}

// clause is one symbolic segment: who-mask, modifier, permission bits.
// The X bit is kept separate because it resolves lazily against the
// current mode and the target kind.
type clause struct {
	whoMask  uint32
	whoGiven bool
	op       byte
	perms    uint32
	hasX     bool
}

// Who masks follow chmod: the high octal digit covers the setuid/setgid/
// sticky bit reachable from that class.
const (
	whoUser  = 0o4700
	whoGroup = 0o2070
	whoOther = 0o1007
	whoAll   = 0o7777
)

// Parse validates and compiles a mode expression.
func Parse(raw string) (*Spec, error) {
	if raw == "" {
		return nil, errors.New(errors.ErrModeInvalid, "empty mode")
	}

	s := &Spec{raw: raw}

	// Octal forms first: "644", "=755", "+111", "-022".
	octalPart := raw
	switch raw[0] {
	case '=', '+', '-':
		s.op = raw[0]
		octalPart = raw[1:]
	}
	if octalPart != "" && isOctalDigit(octalPart[0]) {
		value, err := strconv.ParseUint(octalPart, 8, 32)
		if err != nil || value > 0o7777 {
			return nil, errors.Newf(errors.ErrModeInvalid, "invalid octal mode %q", raw)
		}
		s.octal = true
		s.value = uint32(value)
		return s, nil
	}

	// Symbolic clause list.
	s.op = 0
	for _, segment := range strings.Split(raw, ",") {
		c, err := parseClause(segment, raw)
		if err != nil {
			return nil, err
		}
		s.clauses = append(s.clauses, c)
	}
	return s, nil
}

func parseClause(segment, raw string) (clause, error) {
	var c clause
	i := 0
	for ; i < len(segment); i++ {
		ch := segment[i]
		if ch == '=' || ch == '+' || ch == '-' {
			c.op = ch
			i++
			break
		}
		switch ch {
		case 'u':
			c.whoMask |= whoUser
		case 'g':
			c.whoMask |= whoGroup
		case 'o':
			c.whoMask |= whoOther
		case 'a':
			c.whoMask |= whoAll
		default:
			return c, errors.Newf(errors.ErrModeInvalid, "invalid mode %q", raw)
		}
		c.whoGiven = true
	}
	if c.op == 0 {
		return c, errors.Newf(errors.ErrModeInvalid, "invalid mode %q (missing =, + or -)", raw)
	}
	if i == len(segment) && c.op != '=' {
		return c, errors.Newf(errors.ErrModeInvalid, "invalid mode %q (empty permission list)", raw)
	}
	for ; i < len(segment); i++ {
		switch segment[i] {
		case 'r':
			c.perms |= 0o444
		case 'w':
			c.perms |= 0o222
		case 'x':
			c.perms |= 0o111
		case 'X':
			c.hasX = true
		case 's':
			c.perms |= 0o6000
		case 't':
			c.perms |= 0o1000
		default:
			return c, errors.Newf(errors.ErrModeInvalid, "invalid mode %q", raw)
		}
	}
	return c, nil
}

// Apply computes the new permission bits from the current ones. execHint
// marks targets whose X bit resolves to execute permission regardless of
// the current bits (binary-like kinds and directories). umask masks plain
// octal modes and unqualified symbolic clauses.
func (s *Spec) Apply(current uint32, execHint bool, umask uint32) uint32 {
	if s.octal {
		switch s.op {
		case '=':
			return s.value
		case '+':
			return current | s.value
		case '-':
			return current &^ s.value
		default:
			return s.value &^ umask
		}
	}

	bits := current
	for _, c := range s.clauses {
		mask := c.whoMask
		if !c.whoGiven {
			mask = whoAll &^ umask
		}
		perms := c.perms
		if c.hasX && (execHint || bits&0o111 != 0) {
			perms |= 0o111
		}
		switch c.op {
		case '=':
			// Replace only the addressed classes; setgid survives '='
			// like chmod on directories.
			bits = bits&^mask | perms&mask | bits&0o2000
		case '+':
			bits |= perms & mask
		case '-':
			bits &^= perms & mask
		}
	}
	return bits
}

// String returns the original expression.
func (s *Spec) String() string {
	return s.raw
}

func isOctalDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

// FileMode converts raw unix permission bits (including setuid, setgid and
// sticky) to an fs.FileMode suitable for Chmod.
func FileMode(bits uint32) fs.FileMode {
	mode := fs.FileMode(bits & 0o777)
	if bits&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if bits&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if bits&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

// UnixBits converts an fs.FileMode back to raw unix permission bits.
func UnixBits(mode fs.FileMode) uint32 {
	bits := uint32(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	return bits
}
