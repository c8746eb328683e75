package wallet

import (
	"fmt"
	"math/big"
	"math/rand"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/questd/internal/errors"
)

const etherDecimals = 18

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseEther converts a decimal ether amount such as "0.001" into wei.
func ParseEther(decimal string) (*big.Int, error) {
	decimal = strings.TrimSpace(decimal)
	if decimal == "" {
		return new(big.Int), nil
	}
	if !decimalPattern.MatchString(decimal) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q must be in decimal form like 0.01", decimal))
	}
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > etherDecimals {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds %d places", etherDecimals))
	}
	combined := strings.TrimLeft(intPart+fracPart+strings.Repeat("0", etherDecimals-len(fracPart)), "0")
	if combined == "" {
		return new(big.Int), nil
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, "invalid decimal amount")
	}
	return out, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	s := new(big.Int).Abs(wei).String()
	if len(s) <= etherDecimals {
		s = strings.Repeat("0", etherDecimals-len(s)+1) + s
	}
	intPart := s[:len(s)-etherDecimals]
	fracPart := strings.TrimRight(s[len(s)-etherDecimals:], "0")
	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if wei.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// AtLeast reports whether the decimal balance is >= the decimal minimum.
func AtLeast(balance, minimum string) bool {
	b, err := ParseEther(balance)
	if err != nil {
		return false
	}
	m, err := ParseEther(minimum)
	if err != nil {
		return false
	}
	return b.Cmp(m) >= 0
}

// RandomAmount picks a uniformly random amount in [min, max] rounded to six
// decimals.
func RandomAmount(min, max string, rnd *rand.Rand) (string, error) {
	lo, err := ParseEther(min)
	if err != nil {
		return "", err
	}
	hi, err := ParseEther(max)
	if err != nil {
		return "", err
	}
	if hi.Cmp(lo) < 0 {
		lo, hi = hi, lo
	}
	step := big.NewInt(1_000_000_000_000) // 1e-6 ether
	loSteps := new(big.Int).Div(lo, step)
	hiSteps := new(big.Int).Div(hi, step)
	span := new(big.Int).Sub(hiSteps, loSteps)
	pick := new(big.Int).Set(loSteps)
	if span.Sign() > 0 {
		var n int64
		if rnd != nil {
			n = rnd.Int63n(span.Int64() + 1)
		} else {
			n = rand.Int63n(span.Int64() + 1)
		}
		pick.Add(pick, big.NewInt(n))
	}
	return FormatEther(pick.Mul(pick, step)), nil
}

// Range bounds the randomized amount of one action category.
type Range struct {
	Min string `yaml:"min"`
	Max string `yaml:"max"`
}

// DefaultRange is 0.001 to 0.01 ether.
var DefaultRange = Range{Min: "0.001", Max: "0.01"}

func (r Range) Pick(rnd *rand.Rand) (string, error) {
	if r.Min == "" && r.Max == "" {
		r = DefaultRange
	}
	return RandomAmount(r.Min, r.Max, rnd)
}
