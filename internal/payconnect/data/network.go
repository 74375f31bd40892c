package data

import (
	"fmt"
	"strings"
)

type Network string

const (
	MTN        = Network("MTN")
	Telecel    = Network("TELECEL")
	AirtelTigo = Network("AIRTELTIGO")
)

// InferNetwork maps a data plan description to its network by prefix.
// Anything unrecognised is MTN.
func InferNetwork(dataPlan string) Network {
	plan := strings.ToLower(strings.TrimSpace(dataPlan))
	switch {
	case strings.HasPrefix(plan, "telecel"):
		return Telecel
	case strings.HasPrefix(plan, "airtel"):
		return AirtelTigo
	}
	return MTN
}

func ParseNetwork(value string) (Network, error) {
	switch n := Network(strings.ToUpper(strings.TrimSpace(value))); n {
	case MTN, Telecel, AirtelTigo:
		return n, nil
	}
	return "", fmt.Errorf("unknown network %q", value)
}
