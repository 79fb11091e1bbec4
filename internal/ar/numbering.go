package ar

import (
	"strconv"
	"strings"
)

const (
	numberPrefix = "INV-"
	firstNumber  = 1000
)

// NextNumber returns INV-<n> where n is one above the highest numeric suffix in use.
func NextNumber(invoices []Invoice) string {
	next := firstNumber
	for _, inv := range invoices {
		suffix, ok := strings.CutPrefix(inv.Number, numberPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return numberPrefix + strconv.Itoa(next)
}
