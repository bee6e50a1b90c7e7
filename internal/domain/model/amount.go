package model

import (
	"fmt"
	"math/big"
	"strings"
)

// Amounts are carried as base-10 integer strings (wei-scale values exceed
// int64) and persisted as NUMERIC. Arithmetic goes through big.Int.

func parseAmount(v string) (*big.Int, error) {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimSpace(v), 10); !ok {
		return nil, fmt.Errorf("invalid amount value: %q", v)
	}
	return n, nil
}

// AddAmounts returns a+b for decimal-string amounts.
func AddAmounts(a, b string) (string, error) {
	left, err := parseAmount(a)
	if err != nil {
		return "", err
	}
	right, err := parseAmount(b)
	if err != nil {
		return "", err
	}
	return new(big.Int).Add(left, right).String(), nil
}

// SubAmounts returns a-b for decimal-string amounts.
func SubAmounts(a, b string) (string, error) {
	left, err := parseAmount(a)
	if err != nil {
		return "", err
	}
	right, err := parseAmount(b)
	if err != nil {
		return "", err
	}
	return new(big.Int).Sub(left, right).String(), nil
}

// CompareAmounts returns -1, 0 or 1 as a is less than, equal to, or
// greater than b.
func CompareAmounts(a, b string) (int, error) {
	left, err := parseAmount(a)
	if err != nil {
		return 0, err
	}
	right, err := parseAmount(b)
	if err != nil {
		return 0, err
	}
	return left.Cmp(right), nil
}

// AmountIsNegative reports whether the decimal-string amount is below zero.
func AmountIsNegative(a string) (bool, error) {
	n, err := parseAmount(a)
	if err != nil {
		return false, err
	}
	return n.Sign() < 0, nil
}

// AmountIsZero reports whether the decimal-string amount equals zero.
func AmountIsZero(a string) (bool, error) {
	n, err := parseAmount(a)
	if err != nil {
		return false, err
	}
	return n.Sign() == 0, nil
}

// RecoveryRate computes finalPrice / originalAmount as a float ratio.
// Returns 0 when the original amount is zero.
func RecoveryRate(finalPrice, originalAmount string) (float64, error) {
	fp, err := parseAmount(finalPrice)
	if err != nil {
		return 0, err
	}
	oa, err := parseAmount(originalAmount)
	if err != nil {
		return 0, err
	}
	if oa.Sign() == 0 {
		return 0, nil
	}
	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(fp), new(big.Float).SetInt(oa)).Float64()
	return ratio, nil
}
