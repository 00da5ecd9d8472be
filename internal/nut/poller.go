// Package nut reads UPS state from a Network UPS Tools daemon (upsd) and
// turns it into readings.
package nut

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sweeney/sensor-dashboard/internal/reading"
)

// Variable holds a single NUT variable name/value pair.
// Value is always normalised to a string; callers parse as needed.
type Variable struct {
	Name  string
	Value string
}

// Poller abstracts the NUT data source so tests can inject a fake.
type Poller interface {
	Poll(ctx context.Context) ([]Variable, error)
	Close() error
}

// VarsToMap converts a []Variable slice into a name→value map.
func VarsToMap(vars []Variable) map[string]string {
	m := make(map[string]string, len(vars))
	for _, v := range vars {
		m[v.Name] = v.Value
	}
	return m
}

// Readings converts polled variables into a reading set in upsd order.
// Measurements become numeric readings; identifiers and everything else
// (ups.status, ups.serial, ups.firmware, ...) stay text exactly as upsd sent
// them. Derived readings follow the raw ones.
func Readings(vars []Variable) *reading.Set {
	set := reading.NewSet()
	for _, v := range vars {
		if f, ok := measurement(v.Name, v.Value); ok {
			set.Put(v.Name, reading.Number(f))
		} else {
			set.Put(v.Name, reading.Text(v.Value))
		}
	}
	set.Merge(Derive(VarsToMap(vars)))
	return set
}

// plainDecimalRe accepts "8", "-3", "230.0" and "13.6" but not leading-zero
// forms such as "000123450" or "02.10", exponents, or nan/inf.
var plainDecimalRe = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)

// identifierParts name variables that look numeric but are identifiers,
// e.g. ups.firmware "2.10" or ups.productid "5161".
var identifierParts = map[string]bool{
	"serial":    true,
	"firmware":  true,
	"version":   true,
	"productid": true,
	"vendorid":  true,
	"id":        true,
	"model":     true,
	"mfr":       true,
	"date":      true,
	"type":      true,
	"name":      true,
}

// measurement reports whether value is a number that can round-trip as one.
func measurement(name, value string) (float64, bool) {
	for _, part := range strings.Split(name, ".") {
		if identifierParts[part] {
			return 0, false
		}
	}
	if !plainDecimalRe.MatchString(value) {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
